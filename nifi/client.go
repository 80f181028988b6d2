package nifi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/BaSui01/nifimcp/retry"
	"github.com/BaSui01/nifimcp/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultPollTimeout  = 2 * time.Minute

	headerProxyContextPath = "X-ProxyContextPath"
	headerRequestID        = "X-Request-ID"
)

// Doer 是已认证的传输会话
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder 记录引擎请求指标
type Recorder interface {
	RecordEngineRequest(method, resource string, status int, code string, duration time.Duration)
	RecordEngineRetry(method, resource string)
}

type nopRecorder struct{}

func (nopRecorder) RecordEngineRequest(string, string, int, string, time.Duration) {}
func (nopRecorder) RecordEngineRetry(string, string)                              {}

// Client NiFi 控制面客户端
//
// 除了一次性探测得到的版本号，Client 不缓存任何引擎状态，可以被多个 goroutine 并发使用。
type Client struct {
	baseURL   *url.URL
	session   Doer
	proxyPath string
	clientID  string

	retryer  retry.Retryer
	limiter  *rate.Limiter
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger

	ackDisconnected bool
	pollInterval    time.Duration
	pollTimeout     time.Duration

	version atomic.Pointer[Version]
	detect  singleflight.Group
}

// Option 客户端选项
type Option func(*options)

type options struct {
	session         Doer
	proxyPath       string
	policy          *retry.RetryPolicy
	rps             float64
	burst           int
	recorder        Recorder
	tracer          trace.Tracer
	logger          *zap.Logger
	ackDisconnected bool
	pollInterval    time.Duration
	pollTimeout     time.Duration
	clientID        string
}

// WithSession 设置传输会话（默认使用 30s 超时的 http.Client）
func WithSession(d Doer) Option {
	return func(o *options) { o.session = d }
}

// WithProxyContextPath 设置 X-ProxyContextPath 请求头
func WithProxyContextPath(p string) Option {
	return func(o *options) { o.proxyPath = p }
}

// WithRetryPolicy 覆盖默认重试策略；Retryable 总是被替换为按错误类别判断
func WithRetryPolicy(p *retry.RetryPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithRateLimit 限制每秒请求数，rps <= 0 表示不限制
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTracer 设置 tracer（默认取全局 TracerProvider）
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDisconnectedNodeAck 设置 disconnectedNodeAcknowledged 标志
func WithDisconnectedNodeAck(ack bool) Option {
	return func(o *options) { o.ackDisconnected = ack }
}

// WithPollInterval 设置 drop/update request 的轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithPollTimeout 设置异步请求的最长等待时间
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) { o.pollTimeout = d }
}

// WithClientID 设置修订号中携带的 clientId（默认随机 UUID）
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// NewClient 创建客户端，baseURL 形如 https://host:8443/nifi-api
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse nifi base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("nifi base url must be http or https, got %q", baseURL)
	}

	o := options{
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.session == nil {
		o.session = &http.Client{Timeout: defaultTimeout}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/BaSui01/nifimcp/nifi")
	}
	if o.clientID == "" {
		o.clientID = uuid.NewString()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.pollTimeout <= 0 {
		o.pollTimeout = defaultPollTimeout
	}

	c := &Client{
		baseURL:         u,
		session:         o.session,
		proxyPath:       o.proxyPath,
		clientID:        o.clientID,
		recorder:        o.recorder,
		tracer:          o.tracer,
		logger:          o.logger.With(zap.String("component", "nifi_client")),
		ackDisconnected: o.ackDisconnected,
		pollInterval:    o.pollInterval,
		pollTimeout:     o.pollTimeout,
	}
	if o.rps > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}

	policy := retry.DefaultRetryPolicy()
	if o.policy != nil {
		p := *o.policy
		policy = &p
	}
	policy.Retryable = types.IsRetryable
	policy.OnRetry = c.onRetry
	c.retryer = retry.NewBackoffRetryer(policy, c.logger)

	return c, nil
}

// BaseURL 返回引擎 API 根地址
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) onRetry(attempt int, err error, delay time.Duration) {
	method, resource := "", ""
	var e *types.Error
	if errors.As(err, &e) {
		method, resource = e.Method, resourceOf(e.Path)
	}
	c.recorder.RecordEngineRetry(method, resource)
	c.logger.Warn("engine request failed, retrying",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
}

// revision 构造请求体中的修订号
func (c *Client) revision(version int64) map[string]any {
	return map[string]any{"version": version, "clientId": c.clientID}
}

// resourceOf 取路径首段作为指标维度，避免把组件 ID 写进 label
func resourceOf(path string) string {
	path = strings.TrimPrefix(path, "/")
	first, rest, _ := strings.Cut(path, "/")
	if first == "flow" {
		second, _, _ := strings.Cut(rest, "/")
		return "flow/" + second
	}
	return first
}
