package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/sanitize"
	"github.com/BaSui01/nifimcp/types"
)

// effect 工具对引擎状态的影响
type effect int

const (
	readEffect effect = iota
	writeEffect
	destroyEffect
)

// ToolSpec 工具描述与实现
type ToolSpec struct {
	Name        string
	Description string
	// Mutating 为 true 的工具会改变引擎状态，只读闸门开启时不注册
	Mutating    bool
	Destructive bool
	Schema      *Schema

	call func(ctx context.Context, args map[string]any) (any, error)
}

// Definition 转换为 MCP 工具定义
func (s ToolSpec) Definition() *mcp.ToolDefinition {
	return &mcp.ToolDefinition{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: s.Schema,
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    !s.Mutating,
			DestructiveHint: s.Destructive,
			IdempotentHint:  !s.Mutating,
			OpenWorldHint:   true,
		},
	}
}

// Handler 返回 MCP 处理函数：解码并校验参数、执行、脱敏结果
func (s ToolSpec) Handler(san *sanitize.Sanitizer) mcp.ToolHandler {
	if san == nil {
		san = sanitize.New(sanitize.DefaultMaxItems)
	}
	return func(ctx context.Context, args map[string]any) (any, error) {
		result, err := s.call(ctx, args)
		if err != nil {
			return nil, err
		}
		clean, err := san.SanitizeValue(result)
		if err != nil {
			return nil, types.NewError(types.ErrInternal, "sanitize result").WithCause(err)
		}
		return clean, nil
	}
}

// AuditEvent 一次变更类工具调用的审计信息；Args 已脱敏
type AuditEvent struct {
	Tool        string
	Destructive bool
	Args        map[string]any
	Err         error
	Duration    time.Duration
}

// Auditor 接收变更类工具调用的审计事件，实现不应阻塞调用方
type Auditor interface {
	Audit(ctx context.Context, ev AuditEvent)
}

// RegisterOption 注册选项
type RegisterOption func(*registerOptions)

type registerOptions struct {
	auditor Auditor
}

// WithAuditor 为变更类工具挂接审计
func WithAuditor(a Auditor) RegisterOption {
	return func(o *registerOptions) { o.auditor = a }
}

// Register 把工具注册到 MCP 服务器
func Register(server *mcp.DefaultMCPServer, specs []ToolSpec, san *sanitize.Sanitizer, opts ...RegisterOption) error {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if san == nil {
		san = sanitize.New(sanitize.DefaultMaxItems)
	}
	for _, s := range specs {
		h := s.Handler(san)
		if s.Mutating && o.auditor != nil {
			h = audited(s, h, san, o.auditor)
		}
		if err := server.RegisterTool(s.Definition(), h); err != nil {
			return fmt.Errorf("register %s: %w", s.Name, err)
		}
	}
	return nil
}

func audited(s ToolSpec, h mcp.ToolHandler, san *sanitize.Sanitizer, a Auditor) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start := time.Now()
		result, err := h(ctx, args)
		var clean map[string]any
		if args != nil {
			clean, _ = san.Sanitize(args).(map[string]any)
		}
		a.Audit(ctx, AuditEvent{
			Tool:        s.Name,
			Destructive: s.Destructive,
			Args:        clean,
			Err:         err,
			Duration:    time.Since(start),
		})
		return result, err
	}
}

// define 用参数类型 A 构造工具：schema 由 A 生成，调用前按 A 解码与校验
func define[A any](name, description string, e effect, fn func(ctx context.Context, a A) (any, error)) ToolSpec {
	return ToolSpec{
		Name:        name,
		Description: description,
		Mutating:    e != readEffect,
		Destructive: e == destroyEffect,
		Schema:      schemaFor[A](),
		call: func(ctx context.Context, args map[string]any) (any, error) {
			a, err := decodeArgs[A](args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, a)
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := jsonName(f)
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeArgs 经 JSON 往返把参数映射解码为 A 并校验；未知字段视为错误
func decodeArgs[A any](args map[string]any) (A, error) {
	var a A
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return a, types.NewError(types.ErrValidation, "arguments are not valid JSON").WithCause(err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return a, types.Errorf(types.ErrValidation, "invalid arguments: %s", err.Error()).WithCause(err)
	}

	if reflect.TypeFor[A]().Kind() == reflect.Struct {
		if err := validate.Struct(a); err != nil {
			return a, validationError(err)
		}
	}
	return a, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewError(types.ErrValidation, err.Error()).WithCause(err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// 去掉顶层结构体名
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	sort.Strings(msgs)
	return types.NewError(types.ErrValidation, "invalid arguments: "+strings.Join(msgs, "; ")).WithCause(err)
}
