// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理变更审计表 mutation_audit 的 Schema，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 迁移文件通过 embed.FS 内嵌。NewMigratorFromAuditConfig 按
audit 配置创建 DefaultMigrator；CLI 为 nifimcp migrate 子命令提供
up/down/version/status/info 的文本输出。
*/
package migration
