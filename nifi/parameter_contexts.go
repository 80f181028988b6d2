package nifi

import (
	"context"
	"net/http"

	"github.com/BaSui01/nifimcp/types"
)

// Parameter 参数上下文中的单个参数
type Parameter struct {
	Name        string  `json:"name" validate:"required"`
	Value       *string `json:"value"`
	Sensitive   bool    `json:"sensitive"`
	Description string  `json:"description,omitempty"`
}

func (p Parameter) payload() map[string]any {
	m := map[string]any{
		"name":      p.Name,
		"sensitive": p.Sensitive,
	}
	if p.Value != nil {
		m["value"] = *p.Value
	} else {
		m["value"] = nil
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	return map[string]any{"parameter": m}
}

// ParameterContextUpdate 参数上下文更新
//
// 按名称合并：Parameters 中的参数被新增或覆盖，Remove 中的名称被删除，其余参数保持不变。
type ParameterContextUpdate struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
	Parameters  []Parameter      `json:"parameters,omitempty"`
	Remove      []string         `json:"remove,omitempty"`
}

func (u ParameterContextUpdate) component(id string) (map[string]any, error) {
	seen := make(map[string]bool, len(u.Parameters)+len(u.Remove))
	params := make([]any, 0, len(u.Parameters)+len(u.Remove))
	for _, p := range u.Parameters {
		if p.Name == "" {
			return nil, types.NewError(types.ErrValidation, "parameter name is required")
		}
		if seen[p.Name] {
			return nil, types.Errorf(types.ErrValidation, "parameter %q listed more than once", p.Name)
		}
		seen[p.Name] = true
		params = append(params, p.payload())
	}
	for _, name := range u.Remove {
		if name == "" {
			return nil, types.NewError(types.ErrValidation, "parameter name to remove is required")
		}
		if seen[name] {
			return nil, types.Errorf(types.ErrValidation, "parameter %q listed more than once", name)
		}
		seen[name] = true
		// 不带 value 的参数表示删除
		params = append(params, map[string]any{"parameter": map[string]any{"name": name}})
	}

	comp := map[string]any{}
	put(comp, "name", u.Name)
	put(comp, "description", u.Description)
	if len(params) > 0 {
		comp["parameters"] = params
	}
	if len(comp) == 0 {
		return nil, types.NewError(types.ErrValidation, "no parameter context fields to update")
	}
	comp["id"] = id
	return comp, nil
}

// ListParameterContexts 列出参数上下文
func (c *Client) ListParameterContexts(ctx context.Context) (Entity, error) {
	return c.Get(ctx, "flow/parameter-contexts", nil)
}

// GetParameterContext 读取参数上下文
func (c *Client) GetParameterContext(ctx context.Context, id string) (Entity, error) {
	if err := requireID("parameter context", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "parameter-contexts/"+id, nil)
}

// CreateParameterContext 创建参数上下文
func (c *Client) CreateParameterContext(ctx context.Context, name, description string, params []Parameter) (Entity, error) {
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "parameter context name is required")
	}
	seen := make(map[string]bool, len(params))
	list := make([]any, 0, len(params))
	for _, p := range params {
		if p.Name == "" || seen[p.Name] {
			return nil, types.Errorf(types.ErrValidation, "parameter names must be unique and non-empty, got %q", p.Name)
		}
		seen[p.Name] = true
		list = append(list, p.payload())
	}

	comp := map[string]any{"name": name, "parameters": list}
	if description != "" {
		comp["description"] = description
	}
	return c.create(ctx, "parameter-contexts", comp)
}

// UpdateParameterContext 通过 update-request 异步更新参数上下文
//
// 轮询请求直到 complete，然后删除请求并返回最新的上下文。
func (c *Client) UpdateParameterContext(ctx context.Context, id string, version int64, u ParameterContextUpdate) (Entity, error) {
	if err := requireID("parameter context", id); err != nil {
		return nil, err
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	comp, err := u.component(id)
	if err != nil {
		return nil, err
	}

	base := "parameter-contexts/" + id + "/update-requests"
	body := map[string]any{
		"id":                           id,
		"revision":                     c.revision(version),
		"component":                    comp,
		"disconnectedNodeAcknowledged": c.ackDisconnected,
	}
	created, err := c.Execute(ctx, http.MethodPost, base, nil, body)
	if err != nil {
		return nil, err
	}
	reqID := stringOf(created.Map("request")["requestId"])
	if reqID == "" {
		return nil, types.NewError(types.ErrEngineUnavailable, "update request has no id").WithRequest(http.MethodPost, base)
	}
	path := base + "/" + reqID
	defer c.cleanup(ctx, path)

	final, err := c.poll(ctx, path, func(e Entity) bool {
		return e.Map("request")["complete"] == true
	})
	if err != nil {
		return nil, err
	}
	if reason := stringOf(final.Map("request")["failureReason"]); reason != "" {
		return nil, types.NewError(types.ErrValidation, reason).WithRequest(http.MethodGet, path)
	}
	return c.GetParameterContext(ctx, id)
}

// DeleteParameterContext 删除参数上下文
func (c *Client) DeleteParameterContext(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("parameter context", id); err != nil {
		return nil, err
	}
	return c.remove(ctx, "parameter-contexts/"+id, version)
}
