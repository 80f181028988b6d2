package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
)

// =============================================================================
// 📮 Redis Stream 审计目标
// =============================================================================

// StreamSink 以 XADD 追加到 Redis Stream，按 MaxLen 近似裁剪
type StreamSink struct {
	redis  *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewStreamSink 连接 Redis 并校验可达
func NewStreamSink(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*StreamSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("audit stream sink initialized",
		zap.String("addr", cfg.RedisAddr),
		zap.String("stream", cfg.Stream),
	)
	return &StreamSink{
		redis:  client,
		stream: cfg.Stream,
		maxLen: cfg.StreamMaxLen,
		logger: logger.With(zap.String("component", "audit_stream")),
	}, nil
}

// Write 追加一条记录
func (s *StreamSink) Write(ctx context.Context, e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("audit stream sink is closed")
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: entryValues(e),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Recent 以 XREVRANGE 读取最近的记录
func (s *StreamSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("audit stream sink is closed")
	}

	msgs, err := s.redis.XRevRangeN(ctx, s.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, entryFromValues(msg.Values))
	}
	return entries, nil
}

// Close 关闭 Redis 连接
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.redis.Close()
}

func entryValues(e Entry) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"created_at":  e.CreatedAt.Format(time.RFC3339Nano),
		"tool":        e.Tool,
		"destructive": strconv.FormatBool(e.Destructive),
		"subject":     e.Subject,
		"request_id":  e.RequestID,
		"arguments":   e.Arguments,
		"outcome":     e.Outcome,
		"error_code":  e.ErrorCode,
		"http_status": strconv.Itoa(e.HTTPStatus),
		"duration_ms": strconv.FormatInt(e.DurationMs, 10),
	}
}

func entryFromValues(v map[string]any) Entry {
	str := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	e := Entry{
		ID:        str("id"),
		Tool:      str("tool"),
		Subject:   str("subject"),
		RequestID: str("request_id"),
		Arguments: str("arguments"),
		Outcome:   str("outcome"),
		ErrorCode: str("error_code"),
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, str("created_at"))
	e.Destructive, _ = strconv.ParseBool(str("destructive"))
	e.HTTPStatus, _ = strconv.Atoi(str("http_status"))
	e.DurationMs, _ = strconv.ParseInt(str("duration_ms"), 10, 64)
	return e
}
