package nifi

import (
	"context"
	"strings"

	"github.com/BaSui01/nifimcp/types"
)

// ControllerServiceUpdate 控制器服务部分更新
type ControllerServiceUpdate struct {
	Name       Optional[string]            `json:"name"`
	Comments   Optional[string]            `json:"comments"`
	Properties map[string]Optional[string] `json:"properties,omitempty"`
}

// ServiceRef 控制器服务简要信息
type ServiceRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	State   string `json:"state"`
	Version int64  `json:"version"`
}

// ListControllerServices 列出控制器服务；pgID 为空时列出控制器级别服务
func (c *Client) ListControllerServices(ctx context.Context, pgID string) (Entity, error) {
	if pgID == "" {
		return c.Get(ctx, "flow/controller/controller-services", nil)
	}
	return c.Get(ctx, "flow/process-groups/"+pgID+"/controller-services", nil)
}

// GetControllerService 读取控制器服务
func (c *Client) GetControllerService(ctx context.Context, id string) (Entity, error) {
	if err := requireID("controller service", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "controller-services/"+id, nil)
}

// FindControllerServicesByType 按类型（不区分大小写的子串）查找控制器服务
func (c *Client) FindControllerServicesByType(ctx context.Context, pgID, typ string) ([]ServiceRef, error) {
	if typ == "" {
		return nil, types.NewError(types.ErrValidation, "service type is required")
	}
	list, err := c.ListControllerServices(ctx, pgID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(typ)
	out := make([]ServiceRef, 0)
	for _, svc := range list.List("controllerServices") {
		comp := svc.Component()
		svcType := stringOf(comp["type"])
		if !strings.Contains(strings.ToLower(svcType), needle) {
			continue
		}
		out = append(out, ServiceRef{
			ID:      svc.ID(),
			Name:    stringOf(comp["name"]),
			Type:    svcType,
			State:   stringOf(comp["state"]),
			Version: svc.Version(),
		})
	}
	return out, nil
}

// CreateControllerService 在组内创建控制器服务
func (c *Client) CreateControllerService(ctx context.Context, pgID, typ, name string) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	if typ == "" {
		return nil, types.NewError(types.ErrValidation, "controller service type is required")
	}
	comp := map[string]any{"type": typ}
	if name != "" {
		comp["name"] = name
	}
	return c.create(ctx, "process-groups/"+pgID+"/controller-services", comp)
}

// UpdateControllerService 部分更新控制器服务
func (c *Client) UpdateControllerService(ctx context.Context, id string, version int64, u ControllerServiceUpdate) (Entity, error) {
	if err := requireID("controller service", id); err != nil {
		return nil, err
	}
	comp := map[string]any{}
	put(comp, "name", u.Name)
	put(comp, "comments", u.Comments)
	putProperties(comp, "properties", u.Properties)
	if len(comp) == 0 {
		return nil, types.NewError(types.ErrValidation, "no controller service fields to update")
	}
	comp["id"] = id
	return c.update(ctx, "controller-services/"+id, version, comp)
}

// DeleteControllerService 删除控制器服务
func (c *Client) DeleteControllerService(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("controller service", id); err != nil {
		return nil, err
	}
	return c.remove(ctx, "controller-services/"+id, version)
}

// EnableControllerService 启用控制器服务
func (c *Client) EnableControllerService(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("controller service", id); err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, "controller-services/"+id, version, StateEnabled)
}

// DisableControllerService 禁用控制器服务
func (c *Client) DisableControllerService(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("controller service", id); err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, "controller-services/"+id, version, StateDisabled)
}
