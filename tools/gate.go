package tools

// ReadGate 只读闸门，启动时构造一次，之后不可变
//
// 闸门开启时变更类工具根本不会注册到 MCP 服务器，
// 调用方无法通过 tools/list 看到它们，也无法调用。
type ReadGate struct {
	readOnly bool
}

// NewReadGate 创建闸门；readOnly 为 true 时只开放读工具
func NewReadGate(readOnly bool) ReadGate {
	return ReadGate{readOnly: readOnly}
}

// ReadOnly 闸门是否开启
func (g ReadGate) ReadOnly() bool {
	return g.readOnly
}

// Allows 工具是否可以注册
func (g ReadGate) Allows(spec ToolSpec) bool {
	return !g.readOnly || !spec.Mutating
}

// Filter 返回闸门允许的工具
func (g ReadGate) Filter(specs []ToolSpec) []ToolSpec {
	out := make([]ToolSpec, 0, len(specs))
	for _, s := range specs {
		if g.Allows(s) {
			out = append(out, s)
		}
	}
	return out
}
