package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/internal/audit"
	"github.com/BaSui01/nifimcp/testutil"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
)

func auditConfigFile(t *testing.T) (string, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "audit.db")
	path := writeConfig(t, "audit:\n  enabled: true\n  sink: database\n  driver: sqlite\n  dsn: "+dsn+"\n")
	return path, dsn
}

func TestRun_Migrate(t *testing.T) {
	code, _, stderr := runCLI("migrate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "nifimcp migrate <subcommand>")

	code, _, stderr = runCLI("migrate", "sideways")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown migrate subcommand: sideways")

	path, _ := auditConfigFile(t)

	code, stdout, stderr := runCLI("migrate", "version", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "No migrations applied yet")

	code, stdout, stderr = runCLI("migrate", "up", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Current version: 1")

	code, stdout, _ = runCLI("migrate", "status", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "create_mutation_audit")

	code, stdout, _ = runCLI("migrate", "down", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Current version: 0")
}

func TestRun_MigrateExplicitURL(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "explicit.db")
	code, stdout, stderr := runCLI("migrate", "info", "--db-type", "sqlite", "--db-url", dsn)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Pending Migrations: 1")

	code, _, stderr = runCLI("migrate", "up", "--db-type", "oracle", "--db-url", dsn)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported database type")
}

func TestRun_MigrateRedisSinkHasNoSchema(t *testing.T) {
	path := writeConfig(t, "audit:\n  sink: redis\n  redis_addr: localhost:6379\n")
	code, _, stderr := runCLI("migrate", "up", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no schema")
}

func TestRun_AuditLimit(t *testing.T) {
	code, _, stderr := runCLI("audit", "--limit", "0")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--limit must be positive")
}

func TestApp_AuditsMutationsEndToEnd(t *testing.T) {
	fake := fakenifi.New(t)
	path, dsn := auditConfigFile(t)

	cfg := testConfig(fake)
	cfg.NiFi.ReadOnly = false
	cfg.Audit = config.DefaultAuditConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DSN = dsn

	ctx := testutil.TestContext(t)
	app, err := NewApp(ctx, cfg, "", zap.NewNop(), zap.NewAtomicLevel(), withSession(fake.Client()))
	require.NoError(t, err)
	require.NotNil(t, app.audit)

	id := fake.AddProcessor(fakenifi.RootID, "gen", "STOPPED")
	result, err := app.mcp.CallTool(ctx, "start_processor", map[string]any{
		"processor_id": id,
		"version":      fake.Revision(id),
	})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content[0].Text)

	_, err = app.mcp.CallTool(ctx, "get_processor_state", map[string]any{"processor_id": id})
	require.NoError(t, err)

	// Close 排空审计队列
	require.NoError(t, app.Close(ctx))

	code, stdout, stderr := runCLI("audit", "--config", path, "--json")
	require.Equal(t, 0, code, stderr)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "start_processor", entries[0].Tool)
	assert.Equal(t, audit.OutcomeOK, entries[0].Outcome)
	assert.Contains(t, entries[0].Arguments, id)

	code, stdout, _ = runCLI("audit", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "start_processor")
	assert.Contains(t, stdout, "1 entries")
}

func TestAuditSummary(t *testing.T) {
	a := config.DefaultAuditConfig()
	assert.Equal(t, "off", auditSummary(a))

	a.Enabled = true
	a.DSN = "postgres://audit:secret@db/audit"
	a.Driver = "postgres"
	assert.Equal(t, "database:postgres", auditSummary(a))

	a.Sink = config.AuditSinkRedis
	assert.Equal(t, "redis:nifimcp:audit", auditSummary(a))
}
