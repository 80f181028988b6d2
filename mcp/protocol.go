package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/nifimcp/types"
)

// MCPVersion MCP 协议版本
const MCPVersion = "2024-11-05"

// JSON-RPC 方法名
const (
	MethodInitialize  = "initialize"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodInitialized = "notifications/initialized"
)

// ToolAnnotations 工具行为提示
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint"`
	DestructiveHint bool   `json:"destructiveHint"`
	IdempotentHint  bool   `json:"idempotentHint"`
	OpenWorldHint   bool   `json:"openWorldHint"`
}

// ToolDefinition MCP 工具定义
type ToolDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema any              `json:"inputSchema"` // JSON Schema
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// Validate 验证工具定义
func (t *ToolDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if t.InputSchema == nil {
		return fmt.Errorf("tool input schema is required")
	}
	return nil
}

// ReadOnly 工具是否声明为只读
func (t *ToolDefinition) ReadOnly() bool {
	return t.Annotations != nil && t.Annotations.ReadOnlyHint
}

// ServerInfo 服务器信息
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities 服务器能力
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability 工具能力
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// InitializeResult initialize 响应
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Content 工具结果内容块
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult tools/call 响应
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ToolError 工具失败时返回给调用方的结构化错误
type ToolError struct {
	Code       types.ErrorCode `json:"code"`
	Message    string          `json:"message"`
	HTTPStatus int             `json:"httpStatus,omitempty"`
}

// TextResult 把值编码为 JSON 文本结果
func TextResult(v any) (*ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// ErrorResult 把错误编码为 isError 结果；非 types.Error 归为 INTERNAL
func ErrorResult(err error) *ToolResult {
	te := ToolError{Code: types.ErrInternal, Message: err.Error()}
	var typed *types.Error
	if errors.As(err, &typed) {
		te = ToolError{Code: typed.Code, Message: typed.Message, HTTPStatus: typed.HTTPStatus}
	}
	data, _ := json.Marshal(te)
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}, IsError: true}
}

// MCPMessage MCP 消息（JSON-RPC 2.0）
type MCPMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *MCPError      `json:"error,omitempty"`
}

// MCPError MCP 错误
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// 标准错误码
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// NewMCPRequest 创建 MCP 请求
func NewMCPRequest(id any, method string, params map[string]any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewMCPResponse 创建 MCP 响应
func NewMCPResponse(id any, result any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewMCPError 创建 MCP 错误响应
func NewMCPError(id any, code int, message string, data any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
