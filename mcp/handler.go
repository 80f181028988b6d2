package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxMessageBytes 单条 HTTP 消息上限
const maxMessageBytes = 4 << 20

// MCPHandler HTTP 处理器，将 MCP 服务器暴露为 HTTP 端点
//
//	POST /mcp                      同步 JSON-RPC
//	GET  /mcp/sse                  SSE 事件流，首个事件告知 POST 地址
//	POST /mcp/message?clientId=    SSE 会话的请求入口
//	GET  /mcp/ws                   WebSocket
type MCPHandler struct {
	server *DefaultMCPServer
	logger *zap.Logger
	mux    *http.ServeMux
	ws     WSConfig

	// SSE 客户端管理
	sseClients   map[string]chan []byte
	sseClientsMu sync.RWMutex
}

// NewMCPHandler 创建 MCP HTTP 处理器
func NewMCPHandler(server *DefaultMCPServer, logger *zap.Logger) *MCPHandler {
	return NewMCPHandlerWithConfig(server, DefaultWSConfig(), logger)
}

// NewMCPHandlerWithConfig 使用自定义 WebSocket 配置创建处理器
func NewMCPHandlerWithConfig(server *DefaultMCPServer, ws WSConfig, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &MCPHandler{
		server:     server,
		logger:     logger.With(zap.String("component", "mcp_http")),
		ws:         ws,
		sseClients: make(map[string]chan []byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", h.handleRPC)
	mux.HandleFunc("GET /mcp/sse", h.handleSSE)
	mux.HandleFunc("POST /mcp/message", h.handleMessage)
	mux.HandleFunc("GET /mcp/ws", h.handleWebSocket)
	h.mux = mux
	return h
}

// ServeHTTP 实现 http.Handler
func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleRPC 同步处理一条 JSON-RPC 消息
func (h *MCPHandler) handleRPC(w http.ResponseWriter, r *http.Request) {
	msg, errResp := decodeMessage(r)
	if errResp != nil {
		writeJSON(w, http.StatusOK, errResp)
		return
	}

	resp := h.server.HandleMessage(r.Context(), msg)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSSE 处理 SSE 连接
func (h *MCPHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// 事件流是长连接，不受服务器写超时约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := uuid.NewString()
	ch := make(chan []byte, 100)

	h.sseClientsMu.Lock()
	h.sseClients[clientID] = ch
	h.sseClientsMu.Unlock()

	defer func() {
		h.sseClientsMu.Lock()
		delete(h.sseClients, clientID)
		h.sseClientsMu.Unlock()
	}()

	h.logger.Debug("SSE client connected", zap.String("client_id", clientID))

	// 发送 endpoint 事件（告知客户端 POST 地址）
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp/message?clientId=%s\n\n", clientID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleMessage 处理 SSE 会话中的 JSON-RPC 消息，响应经事件流推送
func (h *MCPHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	h.sseClientsMu.RLock()
	_, exists := h.sseClients[clientID]
	h.sseClientsMu.RUnlock()
	if !exists {
		http.Error(w, "unknown clientId", http.StatusNotFound)
		return
	}

	msg, errResp := decodeMessage(r)
	if errResp != nil {
		h.pushToSSEClient(clientID, errResp)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := h.server.HandleMessage(r.Context(), msg)
	if resp != nil {
		h.pushToSSEClient(clientID, resp)
	}
	w.WriteHeader(http.StatusAccepted)
}

// pushToSSEClient 推送消息到 SSE 客户端
func (h *MCPHandler) pushToSSEClient(clientID string, msg *MCPMessage) {
	h.sseClientsMu.RLock()
	ch, exists := h.sseClients[clientID]
	h.sseClientsMu.RUnlock()

	if !exists {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal SSE message", zap.Error(err))
		return
	}

	select {
	case ch <- data:
	default:
		h.logger.Warn("SSE client channel full", zap.String("client_id", clientID))
	}
}

func decodeMessage(r *http.Request) (*MCPMessage, *MCPMessage) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		return nil, NewMCPError(nil, ErrorCodeParseError, "read error", nil)
	}
	var msg MCPMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, NewMCPError(nil, ErrorCodeParseError, "parse error", nil)
	}
	return &msg, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
