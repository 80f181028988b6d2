// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 构造访问 NiFi 的已认证 HTTP 会话。

# 认证优先级

  - 显式 Cookie 头
  - Knox JWT，以 hadoop-jwt Cookie 发送
  - passcode：有 knoxtoken 端点时换取 JWT 并以 Bearer 发送，否则放入 X-Knox-Passcode 头
  - 用户名密码：先尝试从 knoxtoken 端点换取 JWT，失败后退回 Basic 认证

JWT 的 exp 在启动时读取（不校验签名），已过期的令牌直接报错。
Session 满足 nifi.Doer，可通过 nifi.WithSession 注入客户端。
*/
package session
