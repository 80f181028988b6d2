// Package mcp 实现 Model Context Protocol (MCP) 的服务端。
//
// 本包提供 JSON-RPC 2.0 消息分发（initialize、ping、tools/list、tools/call），
// 以及 stdio（按行分隔的 JSON）、HTTP+SSE 与 WebSocket 三种传输。
// 工具失败以 isError 结果返回，文本内容为结构化错误的 JSON。
package mcp
