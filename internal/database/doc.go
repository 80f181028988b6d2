// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供变更审计落库使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

# 驱动

Dialector 按驱动名选择 postgres、mysql 或 sqlite 方言；Open 打开数据库
并应用连接池配置。后台健康检查定时 PingContext，Close 时退出。
*/
package database
