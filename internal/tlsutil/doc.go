// Package tlsutil 提供访问 NiFi 的 HTTP 客户端 TLS 配置，
// 支持自定义 CA、关闭证书校验以及双向 TLS（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
