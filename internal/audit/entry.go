package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/nifimcp/internal/ctxkeys"
	"github.com/BaSui01/nifimcp/tools"
	"github.com/BaSui01/nifimcp/types"
)

// 调用结果
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry 一条变更审计记录，对应 mutation_audit 表
type Entry struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	Tool        string    `gorm:"column:tool" json:"tool"`
	Destructive bool      `gorm:"column:destructive" json:"destructive"`
	Subject     string    `gorm:"column:subject" json:"subject,omitempty"`
	RequestID   string    `gorm:"column:request_id" json:"request_id,omitempty"`
	// 已脱敏参数的 JSON
	Arguments  string `gorm:"column:arguments" json:"arguments"`
	Outcome    string `gorm:"column:outcome" json:"outcome"`
	ErrorCode  string `gorm:"column:error_code" json:"error_code,omitempty"`
	HTTPStatus int    `gorm:"column:http_status" json:"http_status,omitempty"`
	DurationMs int64  `gorm:"column:duration_ms" json:"duration_ms"`
}

// TableName 实现 gorm 的 Tabler
func (Entry) TableName() string { return "mutation_audit" }

// newEntry 由工具调用事件构造审计记录
func newEntry(ctx context.Context, ev tools.AuditEvent, now time.Time) Entry {
	e := Entry{
		ID:          uuid.NewString(),
		CreatedAt:   now.UTC(),
		Tool:        ev.Tool,
		Destructive: ev.Destructive,
		Outcome:     OutcomeOK,
		DurationMs:  ev.Duration.Milliseconds(),
		Arguments:   "{}",
	}
	if sub, ok := ctxkeys.Subject(ctx); ok {
		e.Subject = sub
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		e.RequestID = id
	}
	if len(ev.Args) > 0 {
		if raw, err := json.Marshal(ev.Args); err == nil {
			e.Arguments = string(raw)
		}
	}
	if ev.Err != nil {
		e.Outcome = OutcomeError
		e.ErrorCode = string(types.ErrInternal)
		var te *types.Error
		if errors.As(ev.Err, &te) {
			e.ErrorCode = string(te.Code)
			e.HTTPStatus = te.HTTPStatus
		}
	}
	return e
}
