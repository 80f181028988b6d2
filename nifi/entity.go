package nifi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"github.com/BaSui01/nifimcp/types"
)

// Entity 引擎返回的原始 JSON 对象
type Entity map[string]any

// ID 返回实体 ID
func (e Entity) ID() string {
	return stringOf(e["id"])
}

// Version 返回 revision.version，缺失时为 -1
func (e Entity) Version() int64 {
	rev, ok := e["revision"].(map[string]any)
	if !ok {
		return -1
	}
	v, ok := int64Of(rev["version"])
	if !ok {
		return -1
	}
	return v
}

// Component 返回 component 字段
func (e Entity) Component() map[string]any {
	m, _ := e["component"].(map[string]any)
	return m
}

// Map 按路径取嵌套对象
func (e Entity) Map(path ...string) map[string]any {
	return mapAt(map[string]any(e), path...)
}

// List 按路径取对象数组
func (e Entity) List(path ...string) []Entity {
	if len(path) == 0 {
		return nil
	}
	parent := mapAt(map[string]any(e), path[:len(path)-1]...)
	items, _ := parent[path[len(path)-1]].([]any)
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Entity(m))
		}
	}
	return out
}

// Revision 修订号
type Revision struct {
	Version  int64  `json:"version"`
	ClientID string `json:"clientId,omitempty"`
}

// Position 画布坐标
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) payload() map[string]any {
	return map[string]any{"x": p.X, "y": p.Y}
}

// Optional 三态可选值：未设置（零值）、显式 null、具体值
//
// 零值在构造请求体时被省略。引擎在部分更新中跳过 null 字段，所以 Null
// 按字段类型发送清空值：字符串为 ""，列表为 []，映射为 {}；其他类型没有
// 清空语义，Null 不会写入请求体。属性映射中的 null 仍原样发送，表示恢复默认。
type Optional[T any] struct {
	set   bool
	null  bool
	value T
}

// Some 返回带值的 Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{set: true, value: v}
}

// Null 返回显式清空的 Optional，见 Optional 的清空规则
func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// ValueType 返回承载值的类型，供参数 schema 生成使用
func (Optional[T]) ValueType() reflect.Type { return reflect.TypeFor[T]() }

// IsSet 是否设置（含 null）
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull 是否显式 null
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get 返回值与是否存在具体值
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set && !o.null
}

// wire 返回写入请求体的值；ok 为 false 表示该字段无法清空
func (o Optional[T]) wire() (v any, ok bool) {
	if !o.null {
		return o.value, true
	}
	t := reflect.TypeFor[T]()
	switch t.Kind() {
	case reflect.String:
		return reflect.Zero(t).Interface(), true
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface(), true
	case reflect.Map:
		return reflect.MakeMap(t).Interface(), true
	}
	return nil, false
}

// MarshalJSON 实现 json.Marshaler
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON 实现 json.Unmarshaler；字段缺失时不会被调用，保持未设置
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func put[T any](m map[string]any, key string, o Optional[T]) {
	if !o.IsSet() {
		return
	}
	if v, ok := o.wire(); ok {
		m[key] = v
	}
}

func putProperties(m map[string]any, key string, props map[string]Optional[string]) {
	if len(props) == 0 {
		return
	}
	out := make(map[string]any, len(props))
	for name, v := range props {
		switch {
		case v.IsNull():
			out[name] = nil
		case v.IsSet():
			out[name] = v.value
		}
	}
	if len(out) > 0 {
		m[key] = out
	}
}

// =============================================================================
// 通用变更请求
// =============================================================================

func (c *Client) create(ctx context.Context, path string, component map[string]any) (Entity, error) {
	body := map[string]any{
		"revision":  c.revision(0),
		"component": component,
	}
	return c.Execute(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) update(ctx context.Context, path string, version int64, component map[string]any) (Entity, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	body := map[string]any{
		"revision":                     c.revision(version),
		"component":                    component,
		"disconnectedNodeAcknowledged": c.ackDisconnected,
	}
	return c.Execute(ctx, http.MethodPut, path, nil, body)
}

func (c *Client) remove(ctx context.Context, path string, version int64) (Entity, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("version", strconv.FormatInt(version, 10))
	query.Set("clientId", c.clientID)
	query.Set("disconnectedNodeAcknowledged", strconv.FormatBool(c.ackDisconnected))
	return c.Execute(ctx, http.MethodDelete, path, query, nil)
}

func (c *Client) setRunStatus(ctx context.Context, path string, version int64, state string) (Entity, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	body := map[string]any{
		"revision":                     c.revision(version),
		"state":                        state,
		"disconnectedNodeAcknowledged": c.ackDisconnected,
	}
	return c.Execute(ctx, http.MethodPut, path+"/run-status", nil, body)
}

func checkVersion(version int64) error {
	if version < 0 {
		return types.Errorf(types.ErrValidation, "revision version must be >= 0, got %d", version)
	}
	return nil
}

func requireID(kind, id string) error {
	if id == "" {
		return types.Errorf(types.ErrValidation, "%s id is required", kind)
	}
	return nil
}

// =============================================================================
// 取值辅助
// =============================================================================

func mapAt(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func int64Of(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
