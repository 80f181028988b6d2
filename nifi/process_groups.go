package nifi

import (
	"context"
	"net/http"

	"github.com/BaSui01/nifimcp/types"
)

// 运行状态
const (
	StateRunning  = "RUNNING"
	StateStopped  = "STOPPED"
	StateDisabled = "DISABLED"
	StateEnabled  = "ENABLED"
	StateInvalid  = "INVALID"
)

// 执行引擎（仅 2.x）
const (
	EngineStandard  = "STANDARD"
	EngineStateless = "STATELESS"
)

// ProcessGroupUpdate 进程组部分更新
type ProcessGroupUpdate struct {
	Name               Optional[string] `json:"name"`
	Comments           Optional[string] `json:"comments"`
	ExecutionEngine    Optional[string] `json:"executionEngine"`
	ParameterContextID Optional[string] `json:"parameterContextId"`
}

// BulkRunStatusResult 整组启停结果
type BulkRunStatusResult struct {
	ProcessGroupID string `json:"processGroupId"`
	State          string `json:"state"`
	Processors     int    `json:"processors"`
	AlreadyInState int    `json:"alreadyInState"`
	Disabled       int    `json:"disabled"`
	// 启动时无效的处理器会被引擎跳过
	Invalid int `json:"invalid"`
	Changed int `json:"changed"`
}

// GetRootProcessGroup 读取根进程组的 flow
func (c *Client) GetRootProcessGroup(ctx context.Context) (Entity, error) {
	return c.GetProcessGroupFlow(ctx, "root")
}

// GetProcessGroupFlow 读取进程组内容（处理器、连接、端口、子组）
func (c *Client) GetProcessGroupFlow(ctx context.Context, id string) (Entity, error) {
	if err := requireID("process group", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "flow/process-groups/"+id, nil)
}

// GetProcessGroup 读取进程组实体
func (c *Client) GetProcessGroup(ctx context.Context, id string) (Entity, error) {
	if err := requireID("process group", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "process-groups/"+id, nil)
}

// CreateProcessGroup 在 parentID 下创建子进程组
func (c *Client) CreateProcessGroup(ctx context.Context, parentID, name string, pos Position, engine Optional[string]) (Entity, error) {
	if err := requireID("parent process group", parentID); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, types.NewError(types.ErrValidation, "process group name is required")
	}
	if err := c.checkExecutionEngine(ctx, engine); err != nil {
		return nil, err
	}

	comp := map[string]any{"name": name, "position": pos.payload()}
	put(comp, "executionEngine", engine)
	return c.create(ctx, "process-groups/"+parentID+"/process-groups", comp)
}

// UpdateProcessGroup 部分更新进程组
func (c *Client) UpdateProcessGroup(ctx context.Context, id string, version int64, u ProcessGroupUpdate) (Entity, error) {
	if err := requireID("process group", id); err != nil {
		return nil, err
	}
	if err := c.checkExecutionEngine(ctx, u.ExecutionEngine); err != nil {
		return nil, err
	}

	comp := map[string]any{}
	put(comp, "name", u.Name)
	put(comp, "comments", u.Comments)
	put(comp, "executionEngine", u.ExecutionEngine)
	if u.ParameterContextID.IsSet() {
		if ctxID, ok := u.ParameterContextID.Get(); ok && ctxID != "" {
			comp["parameterContext"] = map[string]any{"id": ctxID}
		} else {
			// 引擎跳过 null 字段，解绑需要 id 为 null 的引用
			comp["parameterContext"] = map[string]any{"id": nil}
		}
	}
	if len(comp) == 0 {
		return nil, types.NewError(types.ErrValidation, "no process group fields to update")
	}
	comp["id"] = id
	return c.update(ctx, "process-groups/"+id, version, comp)
}

// DeleteProcessGroup 删除进程组
func (c *Client) DeleteProcessGroup(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("process group", id); err != nil {
		return nil, err
	}
	return c.remove(ctx, "process-groups/"+id, version)
}

// ApplyParameterContext 把参数上下文绑定到进程组，contextID 为空表示解绑
func (c *Client) ApplyParameterContext(ctx context.Context, pgID string, version int64, contextID string) (Entity, error) {
	u := ProcessGroupUpdate{ParameterContextID: Some(contextID)}
	if contextID == "" {
		u.ParameterContextID = Null[string]()
	}
	return c.UpdateProcessGroup(ctx, pgID, version, u)
}

// SetProcessGroupRunState 启动或停止组内全部处理器
//
// 使用引擎的批量调度接口，不需要修订号；先读一次组内容以统计已处于目标状态的处理器数。
func (c *Client) SetProcessGroupRunState(ctx context.Context, pgID, state string) (*BulkRunStatusResult, error) {
	if state != StateRunning && state != StateStopped {
		return nil, types.Errorf(types.ErrValidation, "state must be %s or %s, got %q", StateRunning, StateStopped, state)
	}
	flow, err := c.GetProcessGroupFlow(ctx, pgID)
	if err != nil {
		return nil, err
	}

	result := &BulkRunStatusResult{ProcessGroupID: pgID, State: state}
	for _, p := range flow.List("processGroupFlow", "flow", "processors") {
		result.Processors++
		switch processorState(p) {
		case state:
			result.AlreadyInState++
		case StateDisabled:
			result.Disabled++
		default:
			if state == StateRunning && processorInvalid(p) {
				result.Invalid++
				continue
			}
			result.Changed++
		}
	}

	body := map[string]any{
		"id":                           pgID,
		"state":                        state,
		"disconnectedNodeAcknowledged": c.ackDisconnected,
	}
	if _, err := c.Execute(ctx, http.MethodPut, "flow/process-groups/"+pgID, nil, body); err != nil {
		return nil, err
	}
	return result, nil
}

// EnableAllControllerServices 启用组内全部控制器服务
func (c *Client) EnableAllControllerServices(ctx context.Context, pgID string) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	body := map[string]any{
		"id":                           pgID,
		"state":                        StateEnabled,
		"disconnectedNodeAcknowledged": c.ackDisconnected,
	}
	return c.Execute(ctx, http.MethodPut, "flow/process-groups/"+pgID+"/controller-services", nil, body)
}

func (c *Client) checkExecutionEngine(ctx context.Context, engine Optional[string]) error {
	v, ok := engine.Get()
	if !ok {
		return nil
	}
	if v != EngineStandard && v != EngineStateless {
		return types.Errorf(types.ErrValidation, "execution engine must be %s or %s, got %q", EngineStandard, EngineStateless, v)
	}
	if !c.IsEpoch2(ctx) {
		return types.Errorf(types.ErrValidation, "execution engine requires NiFi 2.x, engine is %s", c.DetectVersion(ctx))
	}
	return nil
}
