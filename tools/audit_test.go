package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/sanitize"
	"github.com/BaSui01/nifimcp/testutil/fakenifi"
	"github.com/BaSui01/nifimcp/types"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAuditor) Audit(_ context.Context, ev AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func auditedServer(t *testing.T) (*mcp.DefaultMCPServer, *fakenifi.Server, *recordingAuditor) {
	t.Helper()
	client, fake := newTestClient(t)
	aud := &recordingAuditor{}
	server := mcp.NewMCPServer("nifimcp", "test", zap.NewNop())
	require.NoError(t, Register(server, Catalog(client, NewReadGate(false)), sanitize.New(0), WithAuditor(aud)))
	return server, fake, aud
}

func TestRegister_AuditsMutations(t *testing.T) {
	server, fake, aud := auditedServer(t)
	id := fake.AddProcessor(fakenifi.RootID, "gen", "STOPPED")

	callOK(t, server, "start_processor", map[string]any{"processor_id": id, "version": fake.Revision(id)})
	callOK(t, server, "get_processor_state", map[string]any{"processor_id": id})

	require.Len(t, aud.events, 1, "read tools are not audited")
	ev := aud.events[0]
	assert.Equal(t, "start_processor", ev.Tool)
	assert.False(t, ev.Destructive)
	assert.NoError(t, ev.Err)
	assert.Equal(t, id, ev.Args["processor_id"])
	assert.Positive(t, ev.Duration)
}

func TestRegister_AuditsFailuresAndRedactsArgs(t *testing.T) {
	server, fake, aud := auditedServer(t)
	ctxID := fake.AddParameterContext("prod", map[string]string{"db.password": "old"}, "db.password")

	callErr(t, server, "delete_processor", map[string]any{"processor_id": "missing", "version": 0})
	callOK(t, server, "update_parameter_context", map[string]any{
		"parameter_context_id": ctxID,
		"version":              fake.Revision(ctxID),
		"parameters": []any{
			map[string]any{"name": "db.password", "value": "hunter2", "sensitive": true},
		},
	})

	require.Len(t, aud.events, 2)

	failed := aud.events[0]
	assert.Equal(t, "delete_processor", failed.Tool)
	assert.True(t, failed.Destructive)
	var te *types.Error
	require.True(t, errors.As(failed.Err, &te))
	assert.Equal(t, types.ErrNotFound, te.Code)

	params := aud.events[1].Args["parameters"].([]any)
	assert.Equal(t, sanitize.RedactedMarker, params[0].(map[string]any)["value"])
}
