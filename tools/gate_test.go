package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nifimcp/mcp"
)

func TestReadGate_Filter(t *testing.T) {
	specs := []ToolSpec{
		{Name: "read"},
		{Name: "write", Mutating: true},
		{Name: "destroy", Mutating: true, Destructive: true},
	}

	assert.Len(t, NewReadGate(false).Filter(specs), 3)

	gate := NewReadGate(true)
	assert.True(t, gate.ReadOnly())
	filtered := gate.Filter(specs)
	require.Len(t, filtered, 1)
	assert.Equal(t, "read", filtered[0].Name)
}

func TestCatalog_Counts(t *testing.T) {
	client, _ := newTestClient(t)

	all := Catalog(client, NewReadGate(false))
	readOnly := Catalog(client, NewReadGate(true))
	assert.Len(t, readOnly, 21)
	assert.Len(t, all, 55)

	seen := map[string]bool{}
	for _, s := range all {
		assert.False(t, seen[s.Name], "duplicate tool %s", s.Name)
		seen[s.Name] = true
		if s.Destructive {
			assert.True(t, s.Mutating, s.Name)
		}
	}
	for _, name := range []string{"delete_processor", "empty_connection_queue", "terminate_processor", "delete_output_port"} {
		assert.True(t, seen[name], name)
	}
}

func TestReadGate_ServerExposesNoMutatingTools(t *testing.T) {
	server, _ := newTestServer(t, true)

	resp := server.HandleMessage(context.Background(), mcp.NewMCPRequest(1, mcp.MethodToolsList, nil))
	require.Nil(t, resp.Error)
	tools := resp.Result.(map[string]any)["tools"].([]mcp.ToolDefinition)
	require.Len(t, tools, 21)

	for _, tool := range tools {
		require.NotNil(t, tool.Annotations, tool.Name)
		assert.True(t, tool.Annotations.ReadOnlyHint, tool.Name)
		assert.False(t, tool.Annotations.DestructiveHint, tool.Name)
	}

	// 未注册的工具在协议层就是未知工具
	resp = server.HandleMessage(context.Background(), mcp.NewMCPRequest(2, mcp.MethodToolsCall, map[string]any{
		"name":      "delete_processor",
		"arguments": map[string]any{"processor_id": "p", "version": 0},
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrorCodeInvalidParams, resp.Error.Code)
}

func TestDefinition_Annotations(t *testing.T) {
	client, _ := newTestClient(t)
	byName := map[string]ToolSpec{}
	for _, s := range Catalog(client, NewReadGate(false)) {
		byName[s.Name] = s
	}

	read := byName["list_processors"].Definition().Annotations
	assert.True(t, read.ReadOnlyHint)
	assert.True(t, read.IdempotentHint)
	assert.True(t, read.OpenWorldHint)

	write := byName["start_processor"].Definition().Annotations
	assert.False(t, write.ReadOnlyHint)
	assert.False(t, write.DestructiveHint)

	destroy := byName["delete_connection"].Definition().Annotations
	assert.False(t, destroy.ReadOnlyHint)
	assert.True(t, destroy.DestructiveHint)
}
