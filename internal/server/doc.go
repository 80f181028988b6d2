// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，承载 MCP 的 HTTP、SSE、
WebSocket 端点以及 Prometheus 指标端点。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供
    Start/Run/Shutdown 等生命周期方法与异步错误通道。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时，可由 config.ServerConfig 构造。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 取消或服务异常后执行优雅关闭。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
*/
package server
