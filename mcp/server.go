package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultToolTimeout 单次工具调用的默认超时
const DefaultToolTimeout = 60 * time.Second

// ToolHandler 工具处理函数
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Observer 工具调用观测
type Observer interface {
	RecordToolCall(tool string, isError bool, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordToolCall(string, bool, time.Duration) {}

// ServerOption 服务器选项
type ServerOption func(*DefaultMCPServer)

// WithToolTimeout 设置单次工具调用超时
func WithToolTimeout(d time.Duration) ServerOption {
	return func(s *DefaultMCPServer) {
		if d > 0 {
			s.toolTimeout = d
		}
	}
}

// WithObserver 设置工具调用观测
func WithObserver(o Observer) ServerOption {
	return func(s *DefaultMCPServer) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(t trace.Tracer) ServerOption {
	return func(s *DefaultMCPServer) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithInstructions 设置 initialize 返回的使用说明
func WithInstructions(text string) ServerOption {
	return func(s *DefaultMCPServer) { s.instructions = text }
}

// DefaultMCPServer 默认 MCP 服务器实现
type DefaultMCPServer struct {
	info         ServerInfo
	instructions string

	tools        map[string]*ToolDefinition
	toolHandlers map[string]ToolHandler
	toolsMu      sync.RWMutex

	toolTimeout time.Duration
	observer    Observer
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewMCPServer 创建 MCP 服务器
func NewMCPServer(name, version string, logger *zap.Logger, opts ...ServerOption) *DefaultMCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &DefaultMCPServer{
		info:         ServerInfo{Name: name, Version: version},
		tools:        make(map[string]*ToolDefinition),
		toolHandlers: make(map[string]ToolHandler),
		toolTimeout:  DefaultToolTimeout,
		observer:     nopObserver{},
		tracer:       otel.Tracer("github.com/BaSui01/nifimcp/mcp"),
		logger:       logger.With(zap.String("component", "mcp_server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetServerInfo 获取服务器信息
func (s *DefaultMCPServer) GetServerInfo() ServerInfo {
	return s.info
}

// RegisterTool 注册工具
func (s *DefaultMCPServer) RegisterTool(tool *ToolDefinition, handler ToolHandler) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	if handler == nil {
		return fmt.Errorf("tool handler is required")
	}

	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()

	if _, exists := s.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	s.tools[tool.Name] = tool
	s.toolHandlers[tool.Name] = handler

	s.logger.Debug("tool registered", zap.String("name", tool.Name))

	return nil
}

// ListTools 按名称排序列出所有工具
func (s *DefaultMCPServer) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	s.toolsMu.RLock()
	defer s.toolsMu.RUnlock()

	result := make([]ToolDefinition, 0, len(s.tools))
	for _, tool := range s.tools {
		result = append(result, *tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// CallTool 在超时控制下调用工具
//
// 工具自身的失败以 isError 结果返回；只有未知工具返回 error。
func (s *DefaultMCPServer) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.toolsMu.RLock()
	handler, ok := s.toolHandlers[name]
	s.toolsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	ctx, span := s.tracer.Start(ctx, "mcp.tools/call", trace.WithAttributes(attribute.String("mcp.tool", name)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	start := time.Now()
	value, err := handler(callCtx, args)
	var result *ToolResult
	if err == nil {
		result, err = TextResult(value)
	}
	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("name", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = ErrorResult(err)
	} else {
		s.logger.Debug("tool call succeeded",
			zap.String("name", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	s.observer.RecordToolCall(name, result.IsError, time.Since(start))
	return result, nil
}

// =============================================================================
// JSON-RPC 消息分发
// =============================================================================

// HandleMessage 处理一条 JSON-RPC 2.0 请求并返回响应；通知返回 nil
func (s *DefaultMCPServer) HandleMessage(ctx context.Context, msg *MCPMessage) *MCPMessage {
	if msg == nil {
		return NewMCPError(nil, ErrorCodeInvalidRequest, "empty message", nil)
	}
	if msg.JSONRPC != "" && msg.JSONRPC != "2.0" {
		return NewMCPError(msg.ID, ErrorCodeInvalidRequest, "unsupported JSON-RPC version", nil)
	}

	s.logger.Debug("handling message",
		zap.String("method", msg.Method),
		zap.Any("id", msg.ID),
	)

	if msg.ID == nil {
		s.handleNotification(msg)
		return nil
	}

	result, mcpErr := s.dispatch(ctx, msg.Method, msg.Params)
	if mcpErr != nil {
		return &MCPMessage{JSONRPC: "2.0", ID: msg.ID, Error: mcpErr}
	}
	return NewMCPResponse(msg.ID, result)
}

func (s *DefaultMCPServer) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case MethodInitialized:
		s.logger.Info("client initialized notification received")
	default:
		s.logger.Debug("unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *DefaultMCPServer) dispatch(ctx context.Context, method string, params map[string]any) (any, *MCPError) {
	switch method {
	case MethodInitialize:
		return s.handleInitialize(params)
	case MethodPing:
		return map[string]any{}, nil
	case MethodToolsList:
		return s.handleToolsList(ctx)
	case MethodToolsCall:
		return s.handleToolsCall(ctx, params)
	default:
		return nil, &MCPError{
			Code:    ErrorCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

func (s *DefaultMCPServer) handleInitialize(params map[string]any) (any, *MCPError) {
	if client, ok := params["clientInfo"].(map[string]any); ok {
		s.logger.Info("client connected",
			zap.Any("client", client["name"]),
			zap.Any("client_version", client["version"]),
			zap.Any("protocol_version", params["protocolVersion"]),
		)
	}
	return InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *DefaultMCPServer) handleToolsList(ctx context.Context) (any, *MCPError) {
	tools, err := s.ListTools(ctx)
	if err != nil {
		return nil, &MCPError{Code: ErrorCodeInternalError, Message: err.Error()}
	}
	return map[string]any{"tools": tools}, nil
}

func (s *DefaultMCPServer) handleToolsCall(ctx context.Context, params map[string]any) (any, *MCPError) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "missing required parameter: name"}
	}

	// 无参数工具允许省略 arguments
	var args map[string]any
	if raw, present := params["arguments"]; present && raw != nil {
		var ok bool
		if args, ok = raw.(map[string]any); !ok {
			return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "arguments must be an object"}
		}
	}

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: err.Error()}
	}
	return result, nil
}

// =============================================================================
// Serve 传输层消息循环
// =============================================================================

// Serve 在 transport 上顺序处理消息，直到 ctx 取消或传输关闭
func (s *DefaultMCPServer) Serve(ctx context.Context, transport Transport) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}

	s.logger.Info("MCP server starting",
		zap.String("name", s.info.Name),
		zap.String("version", s.info.Version),
	)

	for {
		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("MCP server stopping: context cancelled")
				return ctx.Err()
			}
			if IsClosed(err) {
				s.logger.Info("MCP server stopping: transport closed")
				return nil
			}
			if !errors.Is(err, ErrMalformedMessage) {
				s.logger.Error("MCP server stopping: transport receive failed", zap.Error(err))
				return fmt.Errorf("receive: %w", err)
			}
			s.logger.Warn("discarding malformed message", zap.Error(err))
			if sendErr := transport.Send(ctx, NewMCPError(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
				s.logger.Error("failed to send error response", zap.Error(sendErr))
			}
			continue
		}

		resp := s.HandleMessage(ctx, msg)
		if resp == nil {
			continue
		}

		if sendErr := transport.Send(ctx, resp); sendErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("failed to send response", zap.Error(sendErr))
		}
	}
}
