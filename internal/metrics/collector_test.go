package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/nifi"
)

var (
	_ nifi.Recorder = (*Collector)(nil)
	_ mcp.Observer  = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegisterer("nifimcp", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordToolCall(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordToolCall("list_processors", false, 20*time.Millisecond)
	c.RecordToolCall("list_processors", false, 30*time.Millisecond)
	c.RecordToolCall("list_processors", true, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("list_processors", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("list_processors", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.toolCallDuration))
}

func TestCollector_RecordEngineRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordEngineRequest("GET", "processors", 200, "", 5*time.Millisecond)
	c.RecordEngineRequest("PUT", "processors", 409, "CONFLICT", 5*time.Millisecond)
	c.RecordEngineRequest("GET", "flow/about", 0, "TIMEOUT", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.engineRequestsTotal.WithLabelValues("GET", "processors", "200", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.engineRequestsTotal.WithLabelValues("PUT", "processors", "409", "CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.engineRequestsTotal.WithLabelValues("GET", "flow/about", "none", "TIMEOUT")))
}

func TestCollector_RecordEngineRetry(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordEngineRetry("GET", "flow/process-groups")
	c.RecordEngineRetry("GET", "flow/process-groups")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.engineRetriesTotal.WithLabelValues("GET", "flow/process-groups")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordHTTPRequest("POST", "/mcp", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/mcp", 429, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/mcp", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/mcp", "4xx")))
}

func TestCollector_RecordAuditEvent(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordAuditEvent("written")
	c.RecordAuditEvent("written")
	c.RecordAuditEvent("dropped")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.auditEventsTotal.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.auditEventsTotal.WithLabelValues("dropped")))
}

func TestCollector_ExposedNames(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordToolCall("get_nifi_version", false, time.Millisecond)

	expected := `
# HELP nifimcp_tool_calls_total Total number of MCP tool calls
# TYPE nifimcp_tool_calls_total counter
nifimcp_tool_calls_total{result="ok",tool="get_nifi_version"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "nifimcp_tool_calls_total"))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector(t)
		newTestCollector(t)
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
