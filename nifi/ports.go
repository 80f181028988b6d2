package nifi

import (
	"context"

	"github.com/BaSui01/nifimcp/types"
)

// PortKind 端口方向
type PortKind string

const (
	InputPort  PortKind = "input"
	OutputPort PortKind = "output"
)

func (k PortKind) resource() (string, error) {
	switch k {
	case InputPort:
		return "input-ports", nil
	case OutputPort:
		return "output-ports", nil
	default:
		return "", types.Errorf(types.ErrValidation, "port kind must be input or output, got %q", string(k))
	}
}

// ListKey 列表响应中的字段名
func (k PortKind) ListKey() string {
	if k == OutputPort {
		return "outputPorts"
	}
	return "inputPorts"
}

// PortUpdate 端口部分更新
type PortUpdate struct {
	Name                    Optional[string] `json:"name"`
	Comments                Optional[string] `json:"comments"`
	ConcurrentlySchedulable Optional[int]    `json:"concurrentlySchedulableTaskCount"`
	AllowRemoteAccess       Optional[bool]   `json:"allowRemoteAccess"`
	PortFunction            Optional[string] `json:"portFunction"`
}

// ListPorts 列出组内端口
func (c *Client) ListPorts(ctx context.Context, kind PortKind, pgID string) (Entity, error) {
	res, err := kind.resource()
	if err != nil {
		return nil, err
	}
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	return c.Get(ctx, "process-groups/"+pgID+"/"+res, nil)
}

// GetPort 读取端口
func (c *Client) GetPort(ctx context.Context, kind PortKind, id string) (Entity, error) {
	res, err := c.portPath(kind, id)
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, res, nil)
}

// CreatePort 创建端口
func (c *Client) CreatePort(ctx context.Context, kind PortKind, pgID, name string, pos Position) (Entity, error) {
	res, err := kind.resource()
	if err != nil {
		return nil, err
	}
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "port name is required")
	}
	comp := map[string]any{"name": name, "position": pos.payload()}
	return c.create(ctx, "process-groups/"+pgID+"/"+res, comp)
}

// UpdatePort 部分更新端口
func (c *Client) UpdatePort(ctx context.Context, kind PortKind, id string, version int64, u PortUpdate) (Entity, error) {
	path, err := c.portPath(kind, id)
	if err != nil {
		return nil, err
	}
	if u.PortFunction.IsSet() && !c.IsEpoch2(ctx) {
		return nil, types.NewError(types.ErrValidation, "portFunction requires NiFi 2.x")
	}
	comp := map[string]any{}
	put(comp, "name", u.Name)
	put(comp, "comments", u.Comments)
	put(comp, "concurrentlySchedulableTaskCount", u.ConcurrentlySchedulable)
	put(comp, "allowRemoteAccess", u.AllowRemoteAccess)
	put(comp, "portFunction", u.PortFunction)
	if len(comp) == 0 {
		return nil, types.NewError(types.ErrValidation, "no port fields to update")
	}
	comp["id"] = id
	return c.update(ctx, path, version, comp)
}

// DeletePort 删除端口
func (c *Client) DeletePort(ctx context.Context, kind PortKind, id string, version int64) (Entity, error) {
	path, err := c.portPath(kind, id)
	if err != nil {
		return nil, err
	}
	return c.remove(ctx, path, version)
}

// StartPort 启动端口
func (c *Client) StartPort(ctx context.Context, kind PortKind, id string, version int64) (Entity, error) {
	path, err := c.portPath(kind, id)
	if err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, path, version, StateRunning)
}

// StopPort 停止端口
func (c *Client) StopPort(ctx context.Context, kind PortKind, id string, version int64) (Entity, error) {
	path, err := c.portPath(kind, id)
	if err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, path, version, StateStopped)
}

func (c *Client) portPath(kind PortKind, id string) (string, error) {
	res, err := kind.resource()
	if err != nil {
		return "", err
	}
	if err := requireID(string(kind)+" port", id); err != nil {
		return "", err
	}
	return res + "/" + id, nil
}
