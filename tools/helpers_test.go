package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/nifi"
	"github.com/BaSui01/nifimcp/retry"
	"github.com/BaSui01/nifimcp/sanitize"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
)

func newTestClient(t *testing.T) (*nifi.Client, *fakenifi.Server) {
	t.Helper()
	fake := fakenifi.New(t)
	c, err := nifi.NewClient(fake.URL(),
		nifi.WithSession(fake.Client()),
		nifi.WithRetryPolicy(&retry.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		}),
		nifi.WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)
	return c, fake
}

// newTestServer 注册完整目录（或只读目录）的 MCP 服务器
func newTestServer(t *testing.T, readOnly bool) (*mcp.DefaultMCPServer, *fakenifi.Server) {
	t.Helper()
	client, fake := newTestClient(t)
	server := mcp.NewMCPServer("nifimcp", "test", zap.NewNop())
	require.NoError(t, Register(server, Catalog(client, NewReadGate(readOnly)), sanitize.New(0)))
	return server, fake
}

func call(t *testing.T, s *mcp.DefaultMCPServer, name string, args map[string]any) *mcp.ToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := s.CallTool(ctx, name, args)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	return result
}

func callOK(t *testing.T, s *mcp.DefaultMCPServer, name string, args map[string]any) map[string]any {
	t.Helper()
	result := call(t, s, name, args)
	require.False(t, result.IsError, "unexpected error: %s", result.Content[0].Text)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &out))
	return out
}

func callErr(t *testing.T, s *mcp.DefaultMCPServer, name string, args map[string]any) mcp.ToolError {
	t.Helper()
	result := call(t, s, name, args)
	require.True(t, result.IsError, "expected error, got: %s", result.Content[0].Text)
	var te mcp.ToolError
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &te))
	return te
}

