package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
)

func testConfig(fake *fakenifi.Server) *config.Config {
	cfg := config.DefaultConfig()
	cfg.NiFi.BaseURL = fake.URL()
	cfg.NiFi.Retry.InitialDelay = time.Millisecond
	cfg.NiFi.Retry.MaxDelay = 2 * time.Millisecond
	cfg.NiFi.PollInterval = time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, fake *fakenifi.Server) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, "", zap.NewNop(), zap.NewAtomicLevel(), withSession(fake.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func listTools(t *testing.T, h http.Handler) []mcp.ToolDefinition {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg struct {
		Result struct {
			Tools []mcp.ToolDefinition `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	return msg.Result.Tools
}

func TestApp_ReadOnlyCatalog(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportHTTP

	app := newTestApp(t, cfg, fake)
	assert.Len(t, listTools(t, app.Handler(context.Background())), 22, "21 engine read tools plus check_configuration")
}

func TestApp_WritableCatalog(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportHTTP
	cfg.NiFi.ReadOnly = false

	app := newTestApp(t, cfg, fake)
	assert.Len(t, listTools(t, app.Handler(context.Background())), 56)
}

func TestApp_HandlerRoutes(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportHTTP
	app := newTestApp(t, cfg, fake)
	h := app.Handler(context.Background())

	t.Run("healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, true, body["read_only"])
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("version", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, Version, body["version"])
	})

	t.Run("unknown route", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestApp_WSTransportMountsOnlyWebSocket(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportWS
	app := newTestApp(t, cfg, fake)
	h := app.Handler(context.Background())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApp_HandlerRequiresJWTWhenConfigured(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportHTTP
	cfg.HTTPAuth.Secret = "s3cret"
	app := newTestApp(t, cfg, fake)
	h := app.Handler(context.Background())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 健康检查不需要认证
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_MetricsHandler(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	cfg.Server.Transport = config.TransportHTTP
	app := newTestApp(t, cfg, fake)

	// 先产生一次 HTTP 请求
	listTools(t, app.Handler(context.Background()))

	w := httptest.NewRecorder()
	app.metricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "nifimcp_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_ToolCallReachesEngine(t *testing.T) {
	fake := fakenifi.New(t)
	fake.SetVersion("1.23.2")
	cfg := testConfig(fake)
	app := newTestApp(t, cfg, fake)

	result, err := app.mcp.CallTool(context.Background(), "get_nifi_version", nil)
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content[0].Text)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &out))
	assert.Equal(t, "1.23.2", out["version"])
	assert.Equal(t, false, out["epoch2"])
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "flow/about"))
}

func TestApp_RunStdio(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	app := newTestApp(t, cfg, fake)

	stdin := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n")
	var stdout bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Run(ctx, stdin, &stdout))

	var lines []map[string]any
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.EqualValues(t, 1, lines[0]["id"])
	assert.EqualValues(t, 2, lines[1]["id"])
	tools := lines[1]["result"].(map[string]any)["tools"].([]any)
	assert.Len(t, tools, 22)
}

func TestApp_RunStdioStopsOnCancel(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	app := newTestApp(t, cfg, fake)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, pr, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_ApplyReload(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	app, err := NewApp(context.Background(), cfg, "", zap.NewNop(), level, withSession(fake.Client()))
	require.NoError(t, err)

	next := *cfg
	next.Log.Level = "debug"
	app.applyReload(&next, []config.ConfigChange{{Path: "Log.Level", OldValue: "info", NewValue: "debug"}})
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	next.Log.Level = "loud"
	app.applyReload(&next, []config.ConfigChange{{Path: "Log.Level"}})
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	// 其他字段不会生效
	app.applyReload(&next, []config.ConfigChange{{Path: "NiFi.ReadOnly"}})
	assert.True(t, app.gate.ReadOnly())
}

func TestApp_HotReloadFromFile(t *testing.T) {
	fake := fakenifi.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "nifimcp.yaml")
	write := func(level string) {
		body := "nifi:\n  base_url: " + fake.URL() + "\nlog:\n  level: " + level + "\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("info")

	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	app, err := NewApp(context.Background(), cfg, path, zap.NewNop(), level, withSession(fake.Client()))
	require.NoError(t, err)
	require.NotNil(t, app.reloader)
}

func TestNewApp_ExpiredTokenFails(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	// exp = 1（1970 年）
	cfg.Auth.Token = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJleHAiOjF9.c2lnbmF0dXJl"

	_, err := NewApp(context.Background(), cfg, "", zap.NewNop(), zap.NewAtomicLevel())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine session")
}

func TestInstructions(t *testing.T) {
	fake := fakenifi.New(t)
	cfg := testConfig(fake)
	app := newTestApp(t, cfg, fake)
	assert.Contains(t, instructions(app.gate), "read-only")
}
