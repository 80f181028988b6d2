package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrTransportClosed 传输已关闭
var ErrTransportClosed = errors.New("mcp: transport closed")

// ErrMalformedMessage 单条消息无法解码，传输仍可继续读取
var ErrMalformedMessage = errors.New("mcp: malformed message")

// IsClosed 判断接收错误是否表示对端已关闭
func IsClosed(err error) bool {
	return errors.Is(err, ErrTransportClosed) || errors.Is(err, io.EOF)
}

// Transport MCP 传输层接口
type Transport interface {
	// Send 发送消息
	Send(ctx context.Context, msg *MCPMessage) error
	// Receive 接收消息（阻塞）
	Receive(ctx context.Context) (*MCPMessage, error)
	// Close 关闭传输
	Close() error
}

// ---------------------------------------------------------------------------
// StdioTransport 标准输入输出传输（每行一条 JSON 消息）
// ---------------------------------------------------------------------------

// StdioTransport 基于 bufio.Reader/io.Writer 的 stdio 传输
type StdioTransport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	logger  *zap.Logger
}

// NewStdioTransport 创建 stdio 传输
func NewStdioTransport(reader io.Reader, writer io.Writer, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{
		reader: bufio.NewReaderSize(reader, 64*1024),
		writer: writer,
		logger: logger.With(zap.String("component", "mcp_stdio")),
	}
}

// Send 写出一行 JSON
func (t *StdioTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive 读取下一条非空行并解码；读到 EOF 时返回 ErrTransportClosed
func (t *StdioTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, ErrTransportClosed
				}
				return nil, err
			}
			continue
		}

		var msg MCPMessage
		if jsonErr := json.Unmarshal(line, &msg); jsonErr != nil {
			t.logger.Debug("discarding malformed line", zap.Int("bytes", len(line)))
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, jsonErr)
		}
		return &msg, nil
	}
}

// Close 关闭 stdio 传输（无操作）
func (t *StdioTransport) Close() error {
	return nil
}
