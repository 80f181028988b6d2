package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/internal/audit"
	"github.com/BaSui01/nifimcp/internal/metrics"
	"github.com/BaSui01/nifimcp/internal/server"
	"github.com/BaSui01/nifimcp/internal/session"
	"github.com/BaSui01/nifimcp/internal/telemetry"
	"github.com/BaSui01/nifimcp/internal/tlsutil"
	"github.com/BaSui01/nifimcp/mcp"
	"github.com/BaSui01/nifimcp/nifi"
	"github.com/BaSui01/nifimcp/retry"
	"github.com/BaSui01/nifimcp/sanitize"
	"github.com/BaSui01/nifimcp/tools"
)

const (
	serverName       = "nifimcp"
	metricsNamespace = "nifimcp"
)

// =============================================================================
// 🖥️ App：装配配置、引擎客户端、工具目录与传输
// =============================================================================

// App 一次 serve 运行所需的全部组件
type App struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	client    *nifi.Client
	mcp       *mcp.DefaultMCPServer
	gate      tools.ReadGate
	collector *metrics.Collector
	registry  *prometheus.Registry
	otel      *telemetry.Providers
	reloader  *config.Reloader
	// 未启用审计时为 nil
	audit *audit.Recorder
}

// appOption 测试时替换引擎会话
type appOption func(*appOptions)

type appOptions struct {
	session nifi.Doer
}

func withSession(d nifi.Doer) appOption {
	return func(o *appOptions) { o.session = d }
}

// NewApp 按配置装配服务；会话构造失败（如令牌已过期）直接返回错误
func NewApp(ctx context.Context, cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, opts ...appOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		gate:       tools.NewReadGate(cfg.NiFi.ReadOnly),
		registry:   prometheus.NewRegistry(),
	}

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = otelProviders

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollectorWithRegisterer(metricsNamespace, a.registry, logger)

	doer := o.session
	if doer == nil {
		httpClient, err := tlsutil.NewHTTPClient(cfg.NiFi.Timeout, tlsutil.Options{
			VerifySSL:  cfg.NiFi.VerifySSL,
			CABundle:   cfg.NiFi.CABundle,
			ClientCert: cfg.NiFi.ClientCert,
			ClientKey:  cfg.NiFi.ClientKey,
		})
		if err != nil {
			return nil, fmt.Errorf("build engine http client: %w", err)
		}
		sess, err := session.New(ctx, cfg.Auth, httpClient, logger)
		if err != nil {
			return nil, fmt.Errorf("build engine session: %w", err)
		}
		doer = sess
	}

	a.client, err = nifi.NewClient(cfg.ResolvedBaseURL(),
		nifi.WithSession(doer),
		nifi.WithProxyContextPath(cfg.NiFi.ProxyContextPath),
		nifi.WithRetryPolicy(&retry.RetryPolicy{
			MaxAttempts:  cfg.NiFi.Retry.MaxAttempts,
			InitialDelay: cfg.NiFi.Retry.InitialDelay,
			MaxDelay:     cfg.NiFi.Retry.MaxDelay,
			Multiplier:   2,
			Jitter:       true,
		}),
		nifi.WithRateLimit(cfg.NiFi.RequestsPerSecond, int(math.Ceil(cfg.NiFi.RequestsPerSecond))),
		nifi.WithRecorder(a.collector),
		nifi.WithTracer(a.otel.Tracer("github.com/BaSui01/nifimcp/nifi")),
		nifi.WithLogger(logger),
		nifi.WithDisconnectedNodeAck(cfg.NiFi.DisconnectedNodeAck),
		nifi.WithPollInterval(cfg.NiFi.PollInterval),
		nifi.WithPollTimeout(cfg.NiFi.PollTimeout),
	)
	if err != nil {
		return nil, err
	}

	a.mcp = mcp.NewMCPServer(serverName, Version, logger,
		mcp.WithToolTimeout(cfg.Server.ToolTimeout),
		mcp.WithObserver(a.collector),
		mcp.WithTracer(a.otel.Tracer("github.com/BaSui01/nifimcp/mcp")),
		mcp.WithInstructions(instructions(a.gate)),
	)
	var regOpts []tools.RegisterOption
	if cfg.Audit.Enabled {
		a.audit, err = audit.Open(ctx, cfg.Audit, a.collector, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit sink: %w", err)
		}
		regOpts = append(regOpts, tools.WithAuditor(a.audit))
	}

	specs := tools.Catalog(a.client, a.gate, tools.ConfigCheckTool(cfg))
	if err := tools.Register(a.mcp, specs, sanitize.New(cfg.Sanitize.MaxItems), regOpts...); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	if configPath != "" {
		a.reloader = config.NewReloader(cfg, configPath, logger)
		a.reloader.OnReload(a.applyReload)
	}

	logger.Info("nifimcp assembled",
		zap.String("engine", a.client.BaseURL()),
		zap.String("transport", cfg.Server.Transport),
		zap.Bool("read_only", a.gate.ReadOnly()),
		zap.Int("tools", len(specs)),
		zap.Bool("audit", a.audit != nil),
	)
	return a, nil
}

// instructions 告知客户端当前的闸门状态与修订号约定
func instructions(gate tools.ReadGate) string {
	var b strings.Builder
	b.WriteString("Tools operate on an Apache NiFi instance. ")
	b.WriteString("Mutating tools require the current revision version of the entity; read it first with a get_* tool. ")
	if gate.ReadOnly() {
		b.WriteString("The server is read-only: only inspection tools are available.")
	} else {
		b.WriteString("Write tools are enabled; delete and terminate tools are destructive.")
	}
	return b.String()
}

// applyReload 只处理可热重载的字段
func (a *App) applyReload(cur *config.Config, changes []config.ConfigChange) {
	for _, ch := range changes {
		if ch.Path != "Log.Level" {
			continue
		}
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cur.Log.Level)); err != nil {
			a.logger.Warn("ignoring invalid log level", zap.String("level", cur.Log.Level))
			continue
		}
		a.level.SetLevel(lvl)
		a.logger.Info("log level changed", zap.String("level", lvl.String()))
	}
}

// =============================================================================
// 🚀 运行
// =============================================================================

// Run 按传输方式运行，直到 ctx 取消或传输结束
func (a *App) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			a.logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer a.reloader.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		metricsMgr := server.NewManager(a.metricsHandler(), server.FromServerConfig(a.cfg.Server, a.cfg.Metrics.Addr), a.logger)
		g.Go(func() error { return metricsMgr.Run(gctx) })
	}

	switch a.cfg.Server.Transport {
	case config.TransportStdio:
		g.Go(func() error {
			t := mcp.NewStdioTransport(stdin, stdout, a.logger)
			defer t.Close()
			// 阻塞在 stdin 上的读取无法被取消，ctx 结束时直接返回
			done := make(chan error, 1)
			go func() { done <- a.mcp.Serve(gctx, t) }()
			select {
			case <-gctx.Done():
				return nil
			case err := <-done:
				if err == nil || mcp.IsClosed(err) || errors.Is(err, context.Canceled) {
					// stdin 关闭即会话结束，同时停止指标服务
					return errSessionEnded
				}
				return err
			}
		})
	default:
		httpMgr := server.NewManager(a.Handler(gctx), server.FromServerConfig(a.cfg.Server, ""), a.logger)
		g.Go(func() error { return httpMgr.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		return nil
	}
	return err
}

var errSessionEnded = errors.New("mcp session ended")

// Close 排空审计队列并刷新遥测数据
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	errs = append(errs, a.otel.Shutdown(ctx))
	return errors.Join(errs...)
}

// Handler 返回 HTTP/WS 传输的完整处理链
func (a *App) Handler(ctx context.Context) http.Handler {
	wsCfg := mcp.DefaultWSConfig()
	if a.cfg.Server.MaxInFlight > 0 {
		wsCfg.MaxInFlight = a.cfg.Server.MaxInFlight
	}
	wsCfg.OriginPatterns = a.cfg.Server.AllowedOrigins
	mcpHandler := mcp.NewMCPHandlerWithConfig(a.mcp, wsCfg, a.logger)

	mux := http.NewServeMux()
	if a.cfg.Server.Transport == config.TransportWS {
		mux.Handle("GET /mcp/ws", mcpHandler)
	} else {
		mux.Handle("/mcp", mcpHandler)
		mux.Handle("/mcp/", mcpHandler)
	}
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /version", handleVersion)

	chain := []Middleware{
		Recovery(a.logger),
		RequestID(),
		OTelTracing(),
		RequestLogger(a.logger),
		MetricsMiddleware(a.collector),
		SecurityHeaders(),
		CORS(a.cfg.Server.AllowedOrigins),
	}
	if a.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger))
	}
	if a.cfg.HTTPAuth.Enabled() {
		auth, err := JWTAuth(a.cfg.HTTPAuth, []string{"/healthz", "/version"}, a.logger)
		if err != nil {
			// 公钥无效时拒绝所有请求，而不是静默关闭认证
			a.logger.Error("inbound JWT auth misconfigured, rejecting requests", zap.Error(err))
			auth = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeJSONError(w, http.StatusServiceUnavailable, "INTERNAL", "authentication misconfigured")
				})
			}
		}
		chain = append(chain, auth)
	}
	return Chain(mux, chain...)
}

func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"read_only": a.gate.ReadOnly(),
	})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}
