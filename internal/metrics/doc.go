// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集。

# 核心类型

  - Collector：持有 Counter 与 Histogram 向量，实现 nifi.Recorder
    与 mcp.Observer 两个接口。

# 指标

  - 工具调用：tool_calls_total{tool,result}、tool_call_duration_seconds{tool}
  - 引擎请求：engine_requests_total{method,resource,status,code}、
    engine_request_duration_seconds、engine_retries_total
  - HTTP 传输：http_requests_total{method,path,status}，状态码归类为 2xx/3xx/4xx/5xx

resource 只取 API 路径首段，组件 ID 不会进入 label。
*/
package metrics
