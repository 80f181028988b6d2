package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/types"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string][]bool
}

func (o *recordingObserver) RecordToolCall(tool string, isError bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string][]bool{}
	}
	o.calls[tool] = append(o.calls[tool], isError)
}

func newTestServer(t *testing.T, opts ...ServerOption) *DefaultMCPServer {
	t.Helper()
	s := NewMCPServer("nifimcp", "test", zap.NewNop(), opts...)

	require.NoError(t, s.RegisterTool(&ToolDefinition{
		Name:        "echo",
		Description: "returns its arguments",
		InputSchema: map[string]any{"type": "object"},
		Annotations: &ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	}))
	require.NoError(t, s.RegisterTool(&ToolDefinition{
		Name:        "conflict",
		Description: "always fails with a stale revision",
		InputSchema: map[string]any{"type": "object"},
	}, func(context.Context, map[string]any) (any, error) {
		return nil, types.NewError(types.ErrConflict, "stale revision").WithHTTPStatus(409)
	}))
	require.NoError(t, s.RegisterTool(&ToolDefinition{
		Name:        "slow",
		Description: "waits for its context",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	return s
}

func decodeToolError(t *testing.T, r *ToolResult) ToolError {
	t.Helper()
	require.True(t, r.IsError)
	require.Len(t, r.Content, 1)
	var te ToolError
	require.NoError(t, json.Unmarshal([]byte(r.Content[0].Text), &te))
	return te
}

func TestRegisterTool_Validation(t *testing.T) {
	s := NewMCPServer("x", "1", nil)
	h := func(context.Context, map[string]any) (any, error) { return nil, nil }

	assert.Error(t, s.RegisterTool(&ToolDefinition{Description: "d", InputSchema: map[string]any{}}, h))
	assert.Error(t, s.RegisterTool(&ToolDefinition{Name: "n", InputSchema: map[string]any{}}, h))
	assert.Error(t, s.RegisterTool(&ToolDefinition{Name: "n", Description: "d"}, h))
	assert.Error(t, s.RegisterTool(&ToolDefinition{Name: "n", Description: "d", InputSchema: map[string]any{}}, nil))

	require.NoError(t, s.RegisterTool(&ToolDefinition{Name: "n", Description: "d", InputSchema: map[string]any{}}, h))
	assert.Error(t, s.RegisterTool(&ToolDefinition{Name: "n", Description: "d", InputSchema: map[string]any{}}, h))
}

func TestHandleMessage_Initialize(t *testing.T) {
	s := newTestServer(t)

	resp := s.HandleMessage(context.Background(), NewMCPRequest(1, MethodInitialize, map[string]any{
		"protocolVersion": MCPVersion,
		"clientInfo":      map[string]any{"name": "test-client", "version": "0.1"},
	}))

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	assert.Equal(t, MCPVersion, result.ProtocolVersion)
	assert.Equal(t, "nifimcp", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestHandleMessage_PingAndUnknown(t *testing.T) {
	s := newTestServer(t)

	resp := s.HandleMessage(context.Background(), NewMCPRequest("a", MethodPing, nil))
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{}, resp.Result)
	assert.Equal(t, "a", resp.ID)

	resp = s.HandleMessage(context.Background(), NewMCPRequest(2, "resources/list", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeMethodNotFound, resp.Error.Code)

	resp = s.HandleMessage(context.Background(), &MCPMessage{JSONRPC: "1.0", ID: 3, Method: MethodPing})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeInvalidRequest, resp.Error.Code)
}

func TestHandleMessage_NotificationHasNoResponse(t *testing.T) {
	s := newTestServer(t)
	assert.Nil(t, s.HandleMessage(context.Background(), &MCPMessage{JSONRPC: "2.0", Method: MethodInitialized}))
}

func TestHandleMessage_ToolsListSorted(t *testing.T) {
	s := newTestServer(t)

	resp := s.HandleMessage(context.Background(), NewMCPRequest(1, MethodToolsList, nil))
	require.Nil(t, resp.Error)

	tools := resp.Result.(map[string]any)["tools"].([]ToolDefinition)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"conflict", "echo", "slow"}, names)
}

func TestCallTool_Success(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestServer(t, WithObserver(obs))

	resp := s.HandleMessage(context.Background(), NewMCPRequest(1, MethodToolsCall, map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"processor_id": "p1"},
	}))
	require.Nil(t, resp.Error)

	result := resp.Result.(*ToolResult)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.JSONEq(t, `{"processor_id":"p1"}`, result.Content[0].Text)
	assert.Equal(t, []bool{false}, obs.calls["echo"])
}

func TestCallTool_StructuredError(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestServer(t, WithObserver(obs))

	result, err := s.CallTool(context.Background(), "conflict", nil)
	require.NoError(t, err)

	te := decodeToolError(t, result)
	assert.Equal(t, types.ErrConflict, te.Code)
	assert.Equal(t, "stale revision", te.Message)
	assert.Equal(t, 409, te.HTTPStatus)
	assert.Equal(t, []bool{true}, obs.calls["conflict"])
}

func TestCallTool_Timeout(t *testing.T) {
	s := newTestServer(t, WithToolTimeout(20*time.Millisecond))

	start := time.Now()
	result, err := s.CallTool(context.Background(), "slow", nil)
	require.NoError(t, err)

	te := decodeToolError(t, result)
	assert.Equal(t, types.ErrInternal, te.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCallTool_UnknownAndBadParams(t *testing.T) {
	s := newTestServer(t)

	resp := s.HandleMessage(context.Background(), NewMCPRequest(1, MethodToolsCall, map[string]any{"name": "missing"}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeInvalidParams, resp.Error.Code)

	resp = s.HandleMessage(context.Background(), NewMCPRequest(2, MethodToolsCall, map[string]any{}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeInvalidParams, resp.Error.Code)

	resp = s.HandleMessage(context.Background(), NewMCPRequest(3, MethodToolsCall, map[string]any{
		"name":      "echo",
		"arguments": []any{"not", "an", "object"},
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeInvalidParams, resp.Error.Code)
}

func TestErrorResult_PlainError(t *testing.T) {
	te := decodeToolError(t, ErrorResult(assert.AnError))
	assert.Equal(t, types.ErrInternal, te.Code)
	assert.Equal(t, assert.AnError.Error(), te.Message)
	assert.Zero(t, te.HTTPStatus)
}
