package nifi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/types"
)

// 连接端点类型
const (
	EndpointProcessor        = "PROCESSOR"
	EndpointInputPort        = "INPUT_PORT"
	EndpointOutputPort       = "OUTPUT_PORT"
	EndpointFunnel           = "FUNNEL"
	EndpointRemoteInputPort  = "REMOTE_INPUT_PORT"
	EndpointRemoteOutputPort = "REMOTE_OUTPUT_PORT"
)

var endpointTypes = map[string]bool{
	EndpointProcessor:        true,
	EndpointInputPort:        true,
	EndpointOutputPort:       true,
	EndpointFunnel:           true,
	EndpointRemoteInputPort:  true,
	EndpointRemoteOutputPort: true,
}

// Endpoint 连接端点引用
type Endpoint struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	GroupID string `json:"groupId,omitempty"`
}

// ConnectionSpec 新建连接参数
type ConnectionSpec struct {
	Source        Endpoint
	Destination   Endpoint
	Relationships []string
	Name          string
}

// Queue 连接队列快照
type Queue struct {
	FlowFilesQueued int64 `json:"flowFilesQueued"`
	BytesQueued     int64 `json:"bytesQueued"`
}

// Empty 队列是否为空
func (q Queue) Empty() bool {
	return q.FlowFilesQueued == 0
}

// DrainResult 清空队列结果
type DrainResult struct {
	ConnectionID string `json:"connectionId"`
	Dropped      int64  `json:"dropped"`
	DroppedBytes int64  `json:"droppedBytes"`
	Remaining    Queue  `json:"remaining"`
}

// ListConnections 列出组内连接
func (c *Client) ListConnections(ctx context.Context, pgID string) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	return c.Get(ctx, "process-groups/"+pgID+"/connections", nil)
}

// GetConnection 读取连接
func (c *Client) GetConnection(ctx context.Context, id string) (Entity, error) {
	if err := requireID("connection", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "connections/"+id, nil)
}

// CreateConnection 在组内创建连接
func (c *Client) CreateConnection(ctx context.Context, pgID string, spec ConnectionSpec) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	source, err := endpointPayload("source", spec.Source, pgID)
	if err != nil {
		return nil, err
	}
	dest, err := endpointPayload("destination", spec.Destination, pgID)
	if err != nil {
		return nil, err
	}

	relationships := spec.Relationships
	if relationships == nil {
		relationships = []string{}
	}
	comp := map[string]any{
		"source":                source,
		"destination":           dest,
		"selectedRelationships": relationships,
	}
	if spec.Name != "" {
		comp["name"] = spec.Name
	}
	return c.create(ctx, "process-groups/"+pgID+"/connections", comp)
}

func endpointPayload(role string, e Endpoint, pgID string) (map[string]any, error) {
	if e.ID == "" {
		return nil, types.Errorf(types.ErrValidation, "%s id is required", role)
	}
	typ := e.Type
	if typ == "" {
		typ = EndpointProcessor
	}
	if !endpointTypes[typ] {
		return nil, types.Errorf(types.ErrValidation, "unknown %s type %q", role, typ)
	}
	groupID := e.GroupID
	if groupID == "" {
		groupID = pgID
	}
	return map[string]any{"id": e.ID, "type": typ, "groupId": groupID}, nil
}

// GetConnectionQueue 读取连接队列
func (c *Client) GetConnectionQueue(ctx context.Context, id string) (Queue, error) {
	conn, err := c.GetConnection(ctx, id)
	if err != nil {
		return Queue{}, err
	}
	return queueOf(conn), nil
}

func queueOf(conn Entity) Queue {
	snap := conn.Map("status", "aggregateSnapshot")
	files, _ := int64Of(snap["flowFilesQueued"])
	bytes, _ := int64Of(snap["bytesQueued"])
	return Queue{FlowFilesQueued: files, BytesQueued: bytes}
}

// DeleteConnection 删除连接，队列非空时直接返回 VALIDATION 且不发送 DELETE
func (c *Client) DeleteConnection(ctx context.Context, id string, version int64) (Entity, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	q, err := c.GetConnectionQueue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.Empty() {
		return nil, types.Errorf(types.ErrValidation,
			"connection %s queue is not empty (%d flowfiles, %d bytes); drain it first",
			id, q.FlowFilesQueued, q.BytesQueued)
	}
	return c.remove(ctx, "connections/"+id, version)
}

// DrainConnection 清空连接队列：创建 drop request，轮询至完成后删除该请求
func (c *Client) DrainConnection(ctx context.Context, id string) (*DrainResult, error) {
	if err := requireID("connection", id); err != nil {
		return nil, err
	}
	base := "flowfile-queues/" + id + "/drop-requests"
	created, err := c.Execute(ctx, http.MethodPost, base, nil, nil)
	if err != nil {
		return nil, err
	}
	reqID := stringOf(created.Map("dropRequest")["id"])
	if reqID == "" {
		return nil, types.NewError(types.ErrEngineUnavailable, "drop request has no id").WithRequest(http.MethodPost, base)
	}
	path := base + "/" + reqID
	defer c.cleanup(ctx, path)

	final, err := c.poll(ctx, path, func(e Entity) bool {
		return e.Map("dropRequest")["finished"] == true
	})
	if err != nil {
		return nil, err
	}

	drop := final.Map("dropRequest")
	if reason := stringOf(drop["failureReason"]); reason != "" {
		return nil, types.NewError(types.ErrEngineUnavailable, reason).WithRequest(http.MethodGet, path)
	}
	dropped, _ := int64Of(drop["droppedCount"])
	droppedBytes, _ := int64Of(drop["droppedSize"])

	remaining, err := c.GetConnectionQueue(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DrainResult{
		ConnectionID: id,
		Dropped:      dropped,
		DroppedBytes: droppedBytes,
		Remaining:    remaining,
	}, nil
}

// poll 轮询异步请求直到 done 返回 true
func (c *Client) poll(ctx context.Context, path string, done func(Entity) bool) (Entity, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		e, err := c.Get(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		if done(e) {
			return e, nil
		}
		if time.Now().After(deadline) {
			return nil, types.Errorf(types.ErrEngineUnavailable, "timed out after %s waiting for %s", c.pollTimeout, path).
				WithRequest(http.MethodGet, path)
		}

		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, types.NewError(types.ErrTransientNetwork, "polling canceled").
				WithCause(ctx.Err()).
				WithRequest(http.MethodGet, path)
		case <-t.C:
		}
	}
}

// cleanup 删除引擎端的异步请求记录；调用方已取消时也尽量执行
func (c *Client) cleanup(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := c.Execute(ctx, http.MethodDelete, path, nil, nil); err != nil {
		c.logger.Warn("failed to delete async request", zap.String("path", path), zap.Error(err))
	}
}
