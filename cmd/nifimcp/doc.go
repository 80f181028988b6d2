// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 nifimcp 服务端程序入口。

# 概述

cmd/nifimcp 将 NiFi 控制面以 MCP 工具暴露给客户端，支持 stdio、
HTTP+SSE 与 WebSocket 三种传输。程序负责加载 YAML/环境变量配置、
构建已认证的引擎会话、注册工具目录并运行所选传输。

# 核心类型

  - App：装配配置、引擎客户端、工具目录、指标与遥测
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter：包装 http.ResponseWriter 以捕获状态码，保留 Flush/Hijack

# 主要能力

  - 子命令：serve、tools（列出工具）、check-config（可选 --connect 探测引擎）、
    migrate（审计库 Schema）、audit（查看最近的变更审计）、version
  - 变更审计：audit.enabled 时写类工具调用异步写入数据库或 Redis Stream，Close 时排空
  - 中间件链：Recovery、RequestID、OTelTracing、RequestLogger、Metrics、
    SecurityHeaders、CORS、RateLimiter（基于 IP）、JWTAuth（可选）
  - 日志级别热重载：配置文件变更时只调整 Log.Level
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - stdio 传输下日志强制写入 stderr，stdout 只承载协议帧
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
