package nifi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/internal/ctxkeys"
	"github.com/BaSui01/nifimcp/retry"
	"github.com/BaSui01/nifimcp/types"
)

const (
	maxResponseBytes = 32 << 20
	maxMessageLen    = 2048
)

// Execute 发送一次引擎请求，瞬时故障按重试策略重试
//
// 无内容响应返回空 Entity。失败总是 *types.Error，重试耗尽时原样返回最后一次错误。
func (c *Client) Execute(ctx context.Context, method, path string, query url.Values, body any) (Entity, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, types.NewError(types.ErrInternal, "encode request body").
				WithCause(err).
				WithRequest(method, path)
		}
		payload = data
	}

	return retry.DoWithResultTyped(c.retryer, ctx, func(attempt int) (Entity, error) {
		return c.send(ctx, method, path, query, payload, attempt)
	})
}

// Get 便捷方法
func (c *Client) Get(ctx context.Context, path string, query url.Values) (Entity, error) {
	return c.Execute(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, attempt int) (Entity, error) {
	resource := resourceOf(path)
	ctx, span := c.tracer.Start(ctx, "nifi "+method+" "+resource,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("nifi.path", path),
			attribute.Int("nifi.attempt", attempt),
		),
	)
	defer span.End()

	start := time.Now()
	entity, status, err := c.roundTrip(ctx, method, path, query, payload)
	duration := time.Since(start)

	code := "OK"
	if err != nil {
		code = string(types.GetErrorCode(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	c.recorder.RecordEngineRequest(method, resource, status, code, duration)

	c.logger.Debug("engine request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("attempt", attempt),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.String("result", code),
	)
	return entity, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte) (Entity, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, types.NewError(types.ErrTransientNetwork, "rate limiter wait").
				WithCause(err).
				WithRequest(method, path)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
	if err != nil {
		return nil, 0, types.NewError(types.ErrInternal, "build request").
			WithCause(err).
			WithRequest(method, path)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID, ok := ctxkeys.RequestID(ctx)
	if !ok {
		reqID = uuid.NewString()
	}
	req.Header.Set(headerRequestID, reqID)
	if c.proxyPath != "" {
		req.Header.Set(headerProxyContextPath, c.proxyPath)
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, 0, types.NewError(types.ErrTransientNetwork, "engine unreachable").
			WithCause(err).
			WithRequest(method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, types.NewError(types.ErrTransientNetwork, "read engine response").
			WithCause(err).
			WithHTTPStatus(resp.StatusCode).
			WithRequest(method, path)
	}

	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, types.FromStatus(resp.StatusCode, engineMessage(data)).WithRequest(method, path)
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return Entity{}, resp.StatusCode, nil
	}

	var entity Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, resp.StatusCode, types.NewError(types.ErrEngineUnavailable, "decode engine response").
			WithCause(err).
			WithHTTPStatus(resp.StatusCode).
			WithRequest(method, path)
	}
	if entity == nil {
		entity = Entity{}
	}
	return entity, resp.StatusCode, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL.JoinPath(strings.Split(strings.Trim(path, "/"), "/")...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// engineMessage 提取引擎错误文本；NiFi 大多返回纯文本
func engineMessage(data []byte) string {
	msg := strings.TrimSpace(string(data))
	if strings.HasPrefix(msg, "{") {
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil && body.Message != "" {
			msg = body.Message
		}
	}
	if len(msg) > maxMessageLen {
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
