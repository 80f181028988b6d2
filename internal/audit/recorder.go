package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/tools"
)

// =============================================================================
// 📝 异步审计记录器
// =============================================================================

// 审计事件去向，对应 audit_events_total 的 outcome 标签
const (
	EventWritten = "written"
	EventDropped = "dropped"
	EventFailed  = "failed"
)

// Observer 接收审计事件去向，metrics.Collector 满足该接口
type Observer interface {
	RecordAuditEvent(outcome string)
}

const writeTimeout = 5 * time.Second

// Recorder 实现 tools.Auditor。
//
// Audit 只做非阻塞入队；队列满时丢弃并告警，工具调用永不因审计阻塞。
// 后台协程逐条写入 Sink，Close 会先排空队列再关闭 Sink。
type Recorder struct {
	sink     Sink
	queue    chan Entry
	done     chan struct{}
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewRecorder 创建记录器并启动写入协程；queueSize 非正时取 1
func NewRecorder(sink Sink, queueSize int, observer Observer, logger *zap.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		sink:     sink,
		queue:    make(chan Entry, queueSize),
		done:     make(chan struct{}),
		observer: observer,
		logger:   logger.With(zap.String("component", "audit")),
		now:      time.Now,
	}
	go r.loop()
	return r
}

var _ tools.Auditor = (*Recorder)(nil)

// Audit 将一次变更调用入队
func (r *Recorder) Audit(ctx context.Context, ev tools.AuditEvent) {
	e := newEntry(ctx, ev, r.now())

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(e, "recorder closed")
		return
	}
	select {
	case r.queue <- e:
	default:
		r.drop(e, "queue full")
	}
}

func (r *Recorder) drop(e Entry, reason string) {
	r.dropped.Add(1)
	r.observe(EventDropped)
	r.logger.Warn("audit entry dropped",
		zap.String("reason", reason),
		zap.String("tool", e.Tool),
		zap.String("outcome", e.Outcome),
	)
}

// Dropped 返回累计丢弃数
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Sink 返回底层目标
func (r *Recorder) Sink() Sink {
	return r.sink
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.sink.Write(ctx, e)
		cancel()
		if err != nil {
			r.observe(EventFailed)
			r.logger.Error("audit write failed",
				zap.String("tool", e.Tool),
				zap.String("id", e.ID),
				zap.Error(err),
			)
			continue
		}
		r.observe(EventWritten)
	}
}

func (r *Recorder) observe(outcome string) {
	if r.observer != nil {
		r.observer.RecordAuditEvent(outcome)
	}
}

// Close 停止接收、排空队列并关闭 Sink；重复调用为空操作
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.sink.Close()
}
