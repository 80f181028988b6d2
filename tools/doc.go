// 版权所有 2024 NifiMCP Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package tools 定义暴露给 MCP 客户端的 NiFi 工具目录。

每个工具由一个参数结构体描述：字段名取自 json 标签，说明取自 desc 标签，
约束取自 validate 标签。同一个结构体既用于生成 tools/list 中的 inputSchema，
也用于在调用时解码并校验参数，解码或校验失败统一返回 VALIDATION 错误。

# 只读闸门

ReadGate 在启动时由配置构造。闸门开启时 Catalog 只返回读工具，
变更类工具不会注册到服务器。

# 结果脱敏

所有工具结果在返回前都会经过 sanitize.Sanitizer：敏感键被替换为
"***REDACTED***"，过长的列表被截断并附加标记。

# 使用

	gate := tools.NewReadGate(cfg.NiFi.ReadOnly)
	specs := tools.Catalog(client, gate)
	if err := tools.Register(server, specs, sanitize.New(cfg.Sanitize.MaxItems)); err != nil {
		return err
	}
*/
package tools
