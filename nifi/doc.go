// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 nifi 提供 Apache NiFi REST API 的弹性客户端，覆盖 1.x 与 2.x 两代引擎。

# 概述

Client 通过单一执行器 Execute 发送所有请求：限流、重试、追踪、指标与
结构化日志都在这里完成。网络层故障按指数退避重试，其余错误按 HTTP
状态码归类为 types.Error 并立即返回。

# 核心类型

  - Client：引擎客户端，并发安全，缓存一次性探测到的引擎版本。
  - Entity：引擎返回的 JSON 实体，提供 ID/Version/Component 等访问器。
  - Optional：三态字段（未设置 / 显式清空 / 赋值），用于部分更新。
  - Version：引擎版本，IsEpoch2 区分 1.x 与 2.x 能力。

# 修订号

所有变更操作都携带调用方提供的修订号。创建总是使用版本 0，
过期的修订号会被引擎拒绝并归类为 CONFLICT，客户端不会自动重试。

# 异步请求

连接清空（drop request）与参数上下文更新（update request）是引擎端的
异步任务：先创建请求，再轮询至完成，最后无论成败都删除请求记录。
*/
package nifi
