package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// WSConfig WebSocket 端点配置
type WSConfig struct {
	PingInterval   time.Duration // 服务端心跳间隔，0 表示关闭
	ReadLimit      int64         // 单条消息字节上限
	MaxInFlight    int           // 单连接并发处理的请求数
	Subprotocols   []string
	OriginPatterns []string
}

// DefaultWSConfig 返回默认配置
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval: 30 * time.Second,
		ReadLimit:    maxMessageBytes,
		MaxInFlight:  16,
		Subprotocols: []string{"mcp"},
	}
}

// WSTransport 服务端 WebSocket 传输，每条文本帧承载一条 JSON-RPC 消息
type WSTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	closeOnce sync.Once
}

// NewWSTransport 包装已建立的连接
func NewWSTransport(conn *websocket.Conn, logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{conn: conn, logger: logger.With(zap.String("component", "mcp_ws"))}
}

// Send 写出一条文本帧；底层连接允许并发写
func (t *WSTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return t.conn.Write(ctx, websocket.MessageText, body)
}

// Receive 读取下一条消息；对端正常关闭时返回 ErrTransportClosed
func (t *WSTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, ErrTransportClosed
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: unexpected binary frame", ErrMalformedMessage)
	}

	var msg MCPMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Close 正常关闭连接
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close(websocket.StatusNormalClosure, "closing")
	})
	return err
}

// keepalive 周期性发送 ping，失败时关闭连接
func (t *WSTransport) keepalive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := t.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				t.logger.Warn("heartbeat ping failed", zap.Error(err))
				_ = t.conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

// handleWebSocket 升级连接并并发处理其中的请求
func (h *MCPHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   h.ws.Subprotocols,
		OriginPatterns: h.ws.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	if h.ws.ReadLimit > 0 {
		conn.SetReadLimit(h.ws.ReadLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	t := NewWSTransport(conn, h.logger)
	defer t.Close()
	go t.keepalive(ctx, h.ws.PingInterval)

	if err := h.server.ServeConcurrent(ctx, t, h.ws.MaxInFlight); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("websocket session ended", zap.Error(err))
	}
}

// ServeConcurrent 与 Serve 相同，但每条请求在独立 goroutine 中处理
//
// limit 限制同时处理的请求数；返回前等待所有进行中的请求完成。
func (s *DefaultMCPServer) ServeConcurrent(ctx context.Context, transport Transport, limit int) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsClosed(err) {
				return nil
			}
			if !errors.Is(err, ErrMalformedMessage) {
				return fmt.Errorf("receive: %w", err)
			}
			s.logger.Warn("discarding malformed message", zap.Error(err))
			if sendErr := transport.Send(ctx, NewMCPError(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
				return sendErr
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		wg.Add(1)
		go func(msg *MCPMessage) {
			defer wg.Done()
			defer func() { <-sem }()

			resp := s.HandleMessage(ctx, msg)
			if resp == nil {
				return
			}
			if err := transport.Send(ctx, resp); err != nil && ctx.Err() == nil {
				s.logger.Error("failed to send response", zap.Error(err))
			}
		}(msg)
	}
}
