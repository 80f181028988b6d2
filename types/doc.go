/*
Package types 定义 nifimcp 各层共享的错误模型。

types 不依赖任何内部包。nifi 客户端把引擎响应归类为 Error（Code、HTTPStatus、
Retryable、Method、Path），retry 按 IsRetryable 决定是否重试，tools 与 mcp
把 Code 原样呈现给调用方，audit 把它写入审计记录。

# 错误码

  - TRANSIENT_NETWORK / ENGINE_UNAVAILABLE：可重试
  - AUTHENTICATION / AUTHORIZATION：凭据无效或权限不足
  - CONFLICT：修订号过期或组件状态不允许该操作
  - NOT_FOUND / VALIDATION：目标不存在或参数不合法
  - INTERNAL：本地错误

ClassifyStatus 与 FromStatus 按 HTTP 状态码和响应文本归类，
400 且提示修订号过期时归为 CONFLICT。
*/
package types
