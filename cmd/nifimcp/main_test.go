package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
)

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nifimcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"no args", nil, 2, "", "Usage:"},
		{"version", []string{"version"}, 0, "nifimcp dev", ""},
		{"help", []string{"help"}, 0, "Commands:", ""},
		{"migrate help", []string{"migrate", "help"}, 0, "nifimcp migrate <subcommand>", ""},
		{"unknown", []string{"frobnicate"}, 2, "", "Unknown command: frobnicate"},
		{"bad flag", []string{"serve", "--nope"}, 2, "", "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCLI(tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, out, tt.wantOut)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestRun_ServeRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  transport: grpc\n")
	code, _, errOut := runCLI("serve", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "server.transport")
	assert.Contains(t, errOut, "nifi.base_url")
}

func TestRun_Tools(t *testing.T) {
	code, out, _ := runCLI("tools")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "get_nifi_version")
	assert.Contains(t, out, "22 tools (read_only=true)")
	assert.NotContains(t, out, "delete_processor")

	path := writeConfig(t, "nifi:\n  base_url: https://nifi.example.com/nifi-api\n  read_only: false\n")
	code, out, _ = runCLI("tools", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "56 tools (read_only=false)")
	assert.Contains(t, out, "destructive")
}

func TestRun_ToolsJSON(t *testing.T) {
	code, out, _ := runCLI("tools", "--json")
	require.Equal(t, 0, code)

	var defs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	assert.Len(t, defs, 22)
	for _, d := range defs {
		assert.NotEmpty(t, d["name"])
		assert.NotNil(t, d["inputSchema"])
	}
}

func TestRun_CheckConfig(t *testing.T) {
	path := writeConfig(t, "nifi:\n  base_url: https://nifi.example.com/nifi-api\nauth:\n  user: admin\n  password: hunter2\n")
	code, out, _ := runCLI("check-config", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "config OK")
	assert.Contains(t, out, "basic")
	assert.NotContains(t, out, "hunter2")
}

func TestRun_CheckConfigConnect(t *testing.T) {
	fake := fakenifi.New(t)
	fake.SetVersion("2.1.0")
	// httptest 服务使用明文 HTTP，不涉及证书校验
	path := writeConfig(t, "nifi:\n  base_url: "+fake.URL()+"\n")

	code, out, errOut := runCLI("check-config", "--config", path, "--connect")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "engine_version")
	assert.Contains(t, out, "2.1.0")
}

func TestRun_CheckConfigConnectFailure(t *testing.T) {
	fake := fakenifi.New(t)
	fake.FailAbout()
	path := writeConfig(t, "nifi:\n  base_url: "+fake.URL()+"\n  retry:\n    max_attempts: 1\n")

	code, _, errOut := runCLI("check-config", "--config", path, "--connect")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Engine unreachable")
}

func TestInitLogger(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.Level = "debug"
	logger, level, err := initLogger(cfg, config.TransportHTTP)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	cfg.Level = "nonsense"
	_, level, err = initLogger(cfg, config.TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())

	cfg.Format = "console"
	_, _, err = initLogger(cfg, config.TransportStdio)
	require.NoError(t, err)
}

func TestLogOutputs(t *testing.T) {
	assert.Equal(t, []string{"stderr"}, logOutputs(nil, config.TransportStdio))
	assert.Equal(t, []string{"stderr", "/var/log/nifimcp.log"},
		logOutputs([]string{"stdout", "/var/log/nifimcp.log"}, config.TransportStdio))
	assert.Equal(t, []string{"stdout"}, logOutputs([]string{"stdout"}, config.TransportHTTP))
}

func TestAuthSummary(t *testing.T) {
	assert.Equal(t, "none", authSummary(config.AuthConfig{}))
	assert.Equal(t, "cookie", authSummary(config.AuthConfig{Cookie: "a=b", Token: "t"}))
	assert.Equal(t, "knox_token", authSummary(config.AuthConfig{Token: "t"}))
	assert.Equal(t, "passcode", authSummary(config.AuthConfig{PasscodeToken: "p"}))
	assert.Equal(t, "basic", authSummary(config.AuthConfig{User: "u", Password: "p"}))
}
