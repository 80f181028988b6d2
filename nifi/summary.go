package nifi

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ProcessGroupSummary 进程组汇总
type ProcessGroupSummary struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Processors      int            `json:"processors"`
	ProcessorStates map[string]int `json:"processorStates"`
	Connections     int            `json:"connections"`
	FlowFilesQueued int64          `json:"flowFilesQueued"`
	BytesQueued     int64          `json:"bytesQueued"`
	InputPorts      int            `json:"inputPorts"`
	OutputPorts     int            `json:"outputPorts"`
	ProcessGroups   int            `json:"processGroups"`
}

// HealthStatus 健康等级
type HealthStatus string

const (
	Healthy   HealthStatus = "HEALTHY"
	Degraded  HealthStatus = "DEGRADED"
	Unhealthy HealthStatus = "UNHEALTHY"
)

// ComponentRef 健康报告中引用的组件
type ComponentRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// FlowHealth 进程组健康报告
type FlowHealth struct {
	ProcessGroupID    string              `json:"processGroupId"`
	Status            HealthStatus        `json:"status"`
	Reasons           []string            `json:"reasons"`
	Summary           ProcessGroupSummary `json:"summary"`
	InvalidProcessors []ComponentRef      `json:"invalidProcessors"`
	InvalidServices   []ComponentRef      `json:"invalidServices"`
	StoppedProcessors []ComponentRef      `json:"stoppedProcessors"`
	BackPressured     []ComponentRef      `json:"backPressured"`
	ErrorBulletins    int                 `json:"errorBulletins"`
	WarningBulletins  int                 `json:"warningBulletins"`
}

// GetProcessGroupSummary 一次读取组内容并汇总处理器状态、队列与端口
func (c *Client) GetProcessGroupSummary(ctx context.Context, id string) (*ProcessGroupSummary, error) {
	flow, err := c.GetProcessGroupFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	s := summarize(flow)
	return &s, nil
}

func summarize(flow Entity) ProcessGroupSummary {
	pgf := flow.Map("processGroupFlow")
	content := Entity(pgf).Map("flow")
	f := Entity(content)

	s := ProcessGroupSummary{
		ID:              stringOf(pgf["id"]),
		Name:            stringOf(Entity(pgf).Map("breadcrumb", "breadcrumb")["name"]),
		ProcessorStates: map[string]int{},
	}
	for _, p := range f.List("processors") {
		s.Processors++
		s.ProcessorStates[processorState(p)]++
	}
	for _, conn := range f.List("connections") {
		s.Connections++
		q := queueOf(conn)
		s.FlowFilesQueued += q.FlowFilesQueued
		s.BytesQueued += q.BytesQueued
	}
	s.InputPorts = len(f.List("inputPorts"))
	s.OutputPorts = len(f.List("outputPorts"))
	s.ProcessGroups = len(f.List("processGroups"))
	return s
}

// GetFlowHealth 综合组内容、控制器服务与公告给出健康等级
//
// UNHEALTHY：存在 INVALID 处理器或控制器服务。
// DEGRADED：存在 ERROR 公告、背压连接，或在有处理器运行时仍有处理器停止。
func (c *Client) GetFlowHealth(ctx context.Context, id string) (*FlowHealth, error) {
	flow, err := c.GetProcessGroupFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	services, err := c.ListControllerServices(ctx, id)
	if err != nil {
		return nil, err
	}
	bulletins, err := c.GetBulletins(ctx, BulletinQuery{GroupID: id})
	if err != nil {
		return nil, err
	}

	h := &FlowHealth{
		ProcessGroupID:    id,
		Summary:           summarize(flow),
		Reasons:           []string{},
		InvalidProcessors: []ComponentRef{},
		InvalidServices:   []ComponentRef{},
		StoppedProcessors: []ComponentRef{},
		BackPressured:     []ComponentRef{},
	}
	f := Entity(flow.Map("processGroupFlow", "flow"))

	for _, p := range f.List("processors") {
		comp := p.Component()
		if isInvalid(comp) {
			h.InvalidProcessors = append(h.InvalidProcessors, refOf(p, validationDetail(comp)))
		}
		if processorState(p) == StateStopped {
			h.StoppedProcessors = append(h.StoppedProcessors, refOf(p, ""))
		}
	}
	for _, svc := range services.List("controllerServices") {
		if isInvalid(svc.Component()) {
			h.InvalidServices = append(h.InvalidServices, refOf(svc, validationDetail(svc.Component())))
		}
	}
	for _, conn := range f.List("connections") {
		if detail, ok := backPressure(conn); ok {
			h.BackPressured = append(h.BackPressured, refOf(conn, detail))
		}
	}
	for _, b := range bulletins.List("bulletinBoard", "bulletins") {
		switch stringOf(b.Map("bulletin")["level"]) {
		case "ERROR":
			h.ErrorBulletins++
		case "WARN", "WARNING":
			h.WarningBulletins++
		}
	}

	h.Status = Healthy
	if n := len(h.InvalidProcessors); n > 0 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d invalid processor(s)", n))
	}
	if n := len(h.InvalidServices); n > 0 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d invalid controller service(s)", n))
	}
	if len(h.Reasons) > 0 {
		h.Status = Unhealthy
	}

	var degraded []string
	if h.ErrorBulletins > 0 {
		degraded = append(degraded, fmt.Sprintf("%d error bulletin(s)", h.ErrorBulletins))
	}
	if n := len(h.BackPressured); n > 0 {
		degraded = append(degraded, fmt.Sprintf("%d connection(s) under back pressure", n))
	}
	if h.Summary.ProcessorStates[StateRunning] > 0 && len(h.StoppedProcessors) > 0 {
		degraded = append(degraded, fmt.Sprintf("%d stopped processor(s) in a running group", len(h.StoppedProcessors)))
	}
	if len(degraded) > 0 {
		h.Reasons = append(h.Reasons, degraded...)
		if h.Status == Healthy {
			h.Status = Degraded
		}
	}
	return h, nil
}

func isInvalid(comp map[string]any) bool {
	return stringOf(comp["validationStatus"]) == StateInvalid || stringOf(comp["state"]) == StateInvalid
}

func validationDetail(comp map[string]any) string {
	errs, _ := comp["validationErrors"].([]any)
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if s, ok := e.(string); ok {
			msgs = append(msgs, s)
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// backPressure 队列数量或字节占用达到阈值即视为背压
func backPressure(conn Entity) (string, bool) {
	snap := conn.Map("status", "aggregateSnapshot")
	count, _ := int64Of(snap["percentUseCount"])
	size, _ := int64Of(snap["percentUseBytes"])
	if count < 100 && size < 100 {
		return "", false
	}
	return fmt.Sprintf("count %d%%, size %d%%", count, size), true
}

func refOf(e Entity, detail string) ComponentRef {
	return ComponentRef{
		ID:     e.ID(),
		Name:   stringOf(e.Component()["name"]),
		Detail: detail,
	}
}
