package nifi

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/nifimcp/types"
)

// 调度策略
const (
	StrategyTimerDriven = "TIMER_DRIVEN"
	StrategyCronDriven  = "CRON_DRIVEN"
	StrategyEventDriven = "EVENT_DRIVEN" // 2.x 已移除
)

// ProcessorConfigUpdate 处理器部分更新，未设置的字段不会出现在请求体中
type ProcessorConfigUpdate struct {
	Name                        Optional[string]            `json:"name"`
	Comments                    Optional[string]            `json:"comments"`
	Properties                  map[string]Optional[string] `json:"properties,omitempty"`
	SchedulingStrategy          Optional[string]            `json:"schedulingStrategy"`
	SchedulingPeriod            Optional[string]            `json:"schedulingPeriod"`
	ConcurrentTasks             Optional[int]               `json:"concurrentlySchedulableTaskCount"`
	PenaltyDuration             Optional[string]            `json:"penaltyDuration"`
	YieldDuration               Optional[string]            `json:"yieldDuration"`
	BulletinLevel               Optional[string]            `json:"bulletinLevel"`
	RunDurationMillis           Optional[int64]             `json:"runDurationMillis"`
	AutoTerminatedRelationships Optional[[]string]          `json:"autoTerminatedRelationships"`
}

func (u ProcessorConfigUpdate) component(id string) map[string]any {
	comp := map[string]any{}
	put(comp, "name", u.Name)

	cfg := map[string]any{}
	put(cfg, "comments", u.Comments)
	putProperties(cfg, "properties", u.Properties)
	put(cfg, "schedulingStrategy", u.SchedulingStrategy)
	put(cfg, "schedulingPeriod", u.SchedulingPeriod)
	put(cfg, "concurrentlySchedulableTaskCount", u.ConcurrentTasks)
	put(cfg, "penaltyDuration", u.PenaltyDuration)
	put(cfg, "yieldDuration", u.YieldDuration)
	put(cfg, "bulletinLevel", u.BulletinLevel)
	put(cfg, "runDurationMillis", u.RunDurationMillis)
	put(cfg, "autoTerminatedRelationships", u.AutoTerminatedRelationships)
	if len(cfg) > 0 {
		comp["config"] = cfg
	}
	if len(comp) == 0 {
		return nil
	}
	comp["id"] = id
	return comp
}

// ListProcessors 列出组内处理器
func (c *Client) ListProcessors(ctx context.Context, pgID string) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	return c.Get(ctx, "process-groups/"+pgID+"/processors", nil)
}

// GetProcessor 读取处理器
func (c *Client) GetProcessor(ctx context.Context, id string) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	return c.Get(ctx, "processors/"+id, nil)
}

// CreateProcessor 创建处理器
func (c *Client) CreateProcessor(ctx context.Context, pgID, typ, name string, pos Position) (Entity, error) {
	if err := requireID("process group", pgID); err != nil {
		return nil, err
	}
	if typ == "" || name == "" {
		return nil, types.NewError(types.ErrValidation, "processor type and name are required")
	}
	comp := map[string]any{
		"type":     typ,
		"name":     name,
		"position": pos.payload(),
	}
	return c.create(ctx, "process-groups/"+pgID+"/processors", comp)
}

// UpdateProcessor 部分更新处理器配置
func (c *Client) UpdateProcessor(ctx context.Context, id string, version int64, u ProcessorConfigUpdate) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	if strategy, ok := u.SchedulingStrategy.Get(); ok && strategy == StrategyEventDriven && c.IsEpoch2(ctx) {
		return nil, types.NewError(types.ErrValidation, "EVENT_DRIVEN scheduling is not supported on NiFi 2.x")
	}
	comp := u.component(id)
	if comp == nil {
		return nil, types.NewError(types.ErrValidation, "no processor fields to update")
	}
	return c.update(ctx, "processors/"+id, version, comp)
}

// DeleteProcessor 删除处理器
func (c *Client) DeleteProcessor(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	return c.remove(ctx, "processors/"+id, version)
}

// StartProcessor 启动处理器
func (c *Client) StartProcessor(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, "processors/"+id, version, StateRunning)
}

// StopProcessor 停止处理器
func (c *Client) StopProcessor(ctx context.Context, id string, version int64) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	return c.setRunStatus(ctx, "processors/"+id, version, StateStopped)
}

// TerminateProcessor 终止已停止处理器的残留线程
func (c *Client) TerminateProcessor(ctx context.Context, id string) (Entity, error) {
	if err := requireID("processor", id); err != nil {
		return nil, err
	}
	return c.Execute(ctx, http.MethodDelete, "processors/"+id+"/threads", nil, nil)
}

// GetProcessorState 只返回处理器运行状态
func (c *Client) GetProcessorState(ctx context.Context, id string) (string, error) {
	p, err := c.GetProcessor(ctx, id)
	if err != nil {
		return "", err
	}
	return processorState(p), nil
}

// processorInvalid 组件校验状态或运行状态为无效
func processorInvalid(p Entity) bool {
	return strings.EqualFold(stringOf(p.Component()["validationStatus"]), "INVALID") ||
		strings.EqualFold(stringOf(p.Map("status")["runStatus"]), "Invalid")
}

func processorState(p Entity) string {
	if s := stringOf(p.Component()["state"]); s != "" {
		return s
	}
	return stringOf(p.Map("status")["runStatus"])
}
