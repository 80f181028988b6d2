package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
//
// 同时满足 nifi.Recorder 与 mcp.Observer，可直接注入客户端和 MCP 服务器。
type Collector struct {
	// MCP 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// 引擎请求指标
	engineRequestsTotal   *prometheus.CounterVec
	engineRequestDuration *prometheus.HistogramVec
	engineRetriesTotal    *prometheus.CounterVec

	// HTTP 传输指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 变更审计
	auditEventsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registerer
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定 Registerer
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls",
		},
		[]string{"tool", "result"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	c.engineRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of NiFi REST requests",
		},
		[]string{"method", "resource", "status", "code"},
	)

	c.engineRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "NiFi REST request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)

	c.engineRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_retries_total",
			Help:      "Total number of retried NiFi REST requests",
		},
		[]string{"method", "resource"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.auditEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Total number of mutation audit events by outcome",
		},
		[]string{"outcome"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🧰 工具调用
// =============================================================================

// RecordToolCall 记录一次工具调用
func (c *Collector) RecordToolCall(tool string, isError bool, duration time.Duration) {
	result := "ok"
	if isError {
		result = "error"
	}
	c.toolCallsTotal.WithLabelValues(tool, result).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// 🔌 引擎请求
// =============================================================================

// RecordEngineRequest 记录一次引擎请求；status 为 0 表示未收到响应
func (c *Collector) RecordEngineRequest(method, resource string, status int, code string, duration time.Duration) {
	if code == "" {
		code = "none"
	}
	c.engineRequestsTotal.WithLabelValues(method, resource, engineStatus(status), code).Inc()
	c.engineRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// RecordEngineRetry 记录一次重试
func (c *Collector) RecordEngineRetry(method, resource string) {
	c.engineRetriesTotal.WithLabelValues(method, resource).Inc()
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// RecordAuditEvent 记录审计事件的去向：written、dropped 或 failed
func (c *Collector) RecordAuditEvent(outcome string) {
	c.auditEventsTotal.WithLabelValues(outcome).Inc()
}

func engineStatus(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
