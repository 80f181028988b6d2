// =============================================================================
// nifimcp 主入口
// =============================================================================
// 将 NiFi 控制面以 MCP 工具的形式暴露给客户端
//
// 使用方法:
//
//	nifimcp serve                         # 默认 stdio 传输
//	nifimcp serve --config nifimcp.yaml   # 指定配置文件（支持日志级别热重载）
//	nifimcp tools --config nifimcp.yaml   # 列出当前闸门下注册的工具
//	nifimcp check-config --connect        # 校验配置并探测引擎版本
//	nifimcp version                       # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/nifi"
	"github.com/BaSui01/nifimcp/tools"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// placeholderBaseURL 仅用于离线列出工具，不会发起请求
const placeholderBaseURL = "http://localhost:8080/nifi-api"

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stdin, stdout, stderr)
	case "tools":
		return runTools(args[1:], stdout, stderr)
	case "check-config":
		return runCheckConfig(args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(args[1:], stdout, stderr)
	case "audit":
		return runAudit(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	transport := fs.String("transport", "", "Override server.transport (stdio, http, ws)")
	addr := fs.String("addr", "", "Override server.addr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}

	logger, level, err := initLogger(cfg.Log, cfg.Server.Transport)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting nifimcp",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, *configPath, logger, level)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if err := app.Run(ctx, stdin, stdout); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return 1
	}
	logger.Info("nifimcp stopped")
	return 0
}

// =============================================================================
// 🧰 tools 命令
// =============================================================================

func runTools(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	asJSON := fs.Bool("json", false, "Print full tool definitions as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	base := cfg.ResolvedBaseURL()
	if base == "" {
		base = placeholderBaseURL
	}
	client, err := nifi.NewClient(base)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid engine address: %v\n", err)
		return 1
	}
	specs := tools.Catalog(client, tools.NewReadGate(cfg.NiFi.ReadOnly), tools.ConfigCheckTool(cfg))

	if *asJSON {
		defs := make([]any, 0, len(specs))
		for _, s := range specs {
			defs = append(defs, s.Definition())
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(defs); err != nil {
			fmt.Fprintf(stderr, "Failed to encode tools: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEFFECT\tDESCRIPTION")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, effectLabel(s), s.Description)
	}
	_ = tw.Flush()
	fmt.Fprintf(stdout, "\n%d tools (read_only=%t)\n", len(specs), cfg.NiFi.ReadOnly)
	return 0
}

func effectLabel(s tools.ToolSpec) string {
	switch {
	case s.Destructive:
		return "destructive"
	case s.Mutating:
		return "write"
	default:
		return "read"
	}
}

// =============================================================================
// ✅ check-config 命令
// =============================================================================

func runCheckConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	connect := fs.Bool("connect", false, "Also authenticate and probe the engine version")
	timeout := fs.Duration("timeout", 30*time.Second, "Timeout for --connect")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	summary := map[string]any{
		"transport":   cfg.Server.Transport,
		"engine":      cfg.ResolvedBaseURL(),
		"read_only":   cfg.NiFi.ReadOnly,
		"auth":        authSummary(cfg.Auth),
		"http_auth":   cfg.HTTPAuth.Enabled(),
		"metrics":     cfg.Metrics.Enabled,
		"telemetry":   cfg.Telemetry.Enabled,
		"max_items":   cfg.Sanitize.MaxItems,
		"retry":       cfg.NiFi.Retry.MaxAttempts,
		"verify_ssl":  cfg.NiFi.VerifySSL,
		"tool_budget": cfg.Server.ToolTimeout.String(),
		"audit":       auditSummary(cfg.Audit),
	}

	if *connect {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		logger := zap.NewNop()
		app, err := NewApp(ctx, cfg, "", logger, zap.NewAtomicLevel())
		if err != nil {
			fmt.Fprintf(stderr, "Engine setup failed: %v\n", err)
			return 1
		}
		defer func() { _ = app.Close(context.Background()) }()
		if _, err := app.client.GetAbout(ctx); err != nil {
			fmt.Fprintf(stderr, "Engine unreachable: %v\n", err)
			return 1
		}
		v := app.client.DetectVersion(ctx)
		summary["engine_version"] = v.String()
		summary["engine_epoch2"] = v.IsEpoch2()
	}

	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%v\n", k, summary[k])
	}
	_ = tw.Flush()
	fmt.Fprintln(stdout, "config OK")
	return 0
}

// authSummary 只说明认证方式，不输出凭据
func authSummary(a config.AuthConfig) string {
	switch {
	case a.Cookie != "":
		return "cookie"
	case a.Token != "":
		return "knox_token"
	case a.PasscodeToken != "":
		return "passcode"
	case a.User != "" && a.Password != "":
		return "basic"
	default:
		return "none"
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

// auditSummary 描述审计目标，不输出 DSN 或密码
func auditSummary(a config.AuditConfig) string {
	if !a.Enabled {
		return "off"
	}
	if a.Sink == config.AuditSinkRedis {
		return "redis:" + a.Stream
	}
	return a.Sink + ":" + a.Driver
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "nifimcp %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `nifimcp - NiFi control plane over MCP

Usage:
  nifimcp <command> [options]

Commands:
  serve          Start the MCP server
  tools          List the tools the server would register
  check-config   Validate configuration
  migrate        Manage the audit database schema (up, down, status, version, info)
  audit          Show recent mutation audit entries
  version        Show version information
  help           Show this help message

Options for 'serve':
  --config <path>      Path to configuration file (YAML)
  --transport <name>   stdio, http or ws
  --addr <addr>        Listen address for http/ws

Options for 'tools':
  --config <path>      Path to configuration file (YAML)
  --json               Print full tool definitions

Options for 'check-config':
  --config <path>      Path to configuration file (YAML)
  --connect            Authenticate and probe the engine

Options for 'audit':
  --config <path>      Path to configuration file (YAML)
  --limit <n>          Number of entries to show (default 20)
  --json               Print entries as JSON

Environment variables use the NIFIMCP_ prefix, e.g. NIFIMCP_NIFI_BASE_URL.`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 按配置构建 logger；stdio 传输下 stdout 承载协议帧，日志改写到 stderr
func initLogger(cfg config.LogConfig, transport string) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := logOutputs(cfg.OutputPaths, transport)
	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

func logOutputs(paths []string, transport string) []string {
	if len(paths) == 0 {
		return []string{"stderr"}
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "stdout" && transport == config.TransportStdio {
			p = "stderr"
		}
		out = append(out, p)
	}
	return out
}
