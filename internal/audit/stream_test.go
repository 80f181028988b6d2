package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
)

func setupStream(t *testing.T) (*miniredis.Miniredis, *StreamSink, config.AuditConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.DefaultAuditConfig()
	cfg.Sink = config.AuditSinkRedis
	cfg.RedisAddr = mr.Addr()
	sink, err := NewStreamSink(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return mr, sink, cfg
}

func TestStreamSink_WriteAndRecent(t *testing.T) {
	mr, sink, cfg := setupStream(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 8, 30, 0, 123000000, time.UTC)

	require.NoError(t, sink.Write(ctx, Entry{ID: "a", CreatedAt: at, Tool: "start_processor", Arguments: "{}", Outcome: OutcomeOK, DurationMs: 7}))
	require.NoError(t, sink.Write(ctx, Entry{ID: "b", CreatedAt: at.Add(time.Second), Tool: "delete_connection", Destructive: true, Arguments: "{}", Outcome: OutcomeError, ErrorCode: "CONFLICT", HTTPStatus: 409, Subject: "alice"}))

	stream, err := mr.Stream(cfg.Stream)
	require.NoError(t, err)
	assert.Len(t, stream, 2)

	got, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.True(t, got[0].Destructive)
	assert.Equal(t, 409, got[0].HTTPStatus)
	assert.Equal(t, "alice", got[0].Subject)
	assert.True(t, at.Add(time.Second).Equal(got[0].CreatedAt))
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, int64(7), got[1].DurationMs)
}

func TestStreamSink_ThroughOpenSink(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultAuditConfig()
	cfg.Sink = config.AuditSinkRedis
	cfg.RedisAddr = mr.Addr()

	sink, err := OpenSink(context.Background(), cfg, nil)
	require.NoError(t, err)
	_, ok := sink.(*StreamSink)
	assert.True(t, ok)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Write(context.Background(), Entry{ID: "x"})
	assert.ErrorContains(t, err, "closed")
}

func TestNewStreamSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultAuditConfig()
	cfg.RedisAddr = addr
	_, err := NewStreamSink(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "failed to connect to redis")
}
