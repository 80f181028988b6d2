// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package retry 提供面向 NiFi 引擎请求的指数退避重试。
//
// 重试只作用于调用方判定为可重试的错误类别，耗尽后原样返回最后一次错误，
// 便于上层继续用 errors.As 提取结构化错误。
package retry
