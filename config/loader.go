// =============================================================================
// nifimcp 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("nifimcp.yaml").
//	    WithEnvPrefix("NIFIMCP").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "NIFIMCP"

// 传输方式
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportWS    = "ws"
)

// 审计落地方式
const (
	AuditSinkDatabase = "database"
	AuditSinkRedis    = "redis"
)

// =============================================================================
// 核心配置结构
// =============================================================================

// Config 是 nifimcp 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	NiFi      NiFiConfig      `yaml:"nifi" env:"NIFI"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
	HTTPAuth  HTTPAuthConfig  `yaml:"http_auth" env:"HTTP_AUTH"`
	Sanitize  SanitizeConfig  `yaml:"sanitize" env:"SANITIZE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Audit     AuditConfig     `yaml:"audit" env:"AUDIT"`
}

// ServerConfig MCP 服务端配置
type ServerConfig struct {
	// 传输方式: stdio, http, ws
	Transport string `yaml:"transport" env:"TRANSPORT"`
	// HTTP/WS 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，SSE 与 WebSocket 连接不受其限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单次工具调用超时
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	// 每个客户端 IP 的限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// WebSocket 单连接并发工具调用数
	MaxInFlight int `yaml:"max_in_flight" env:"MAX_IN_FLIGHT"`
	// 允许的跨域 Origin，WebSocket 握手同样使用
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// NiFiConfig 引擎连接配置
type NiFiConfig struct {
	// nifi-api 根地址；为空且配置了 Knox 网关时自动推导
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次 HTTP 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 只读闸门，启动后不可变
	ReadOnly bool `yaml:"read_only" env:"READ_ONLY"`
	// 反向代理路径，作为 X-ProxyContextPath 发送
	ProxyContextPath string `yaml:"proxy_context_path" env:"PROXY_CONTEXT_PATH"`
	VerifySSL        bool   `yaml:"verify_ssl" env:"VERIFY_SSL"`
	CABundle         string `yaml:"ca_bundle" env:"CA_BUNDLE"`
	// 客户端证书（双向 TLS）
	ClientCert string `yaml:"client_cert" env:"CLIENT_CERT"`
	ClientKey  string `yaml:"client_key" env:"CLIENT_KEY"`
	// 发往引擎的请求速率，0 表示不限
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 集群节点断开时仍允许变更
	DisconnectedNodeAck bool `yaml:"disconnected_node_ack" env:"DISCONNECTED_NODE_ACK"`
	// 异步请求（drop request、参数更新）的轮询间隔与上限
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	PollTimeout  time.Duration `yaml:"poll_timeout" env:"POLL_TIMEOUT"`
	Retry        RetryConfig   `yaml:"retry" env:"RETRY"`
}

// RetryConfig 瞬时网络错误的重试策略
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// AuthConfig 引擎认证配置，按 Cookie → Token → Passcode → 用户名密码 的顺序选择
type AuthConfig struct {
	KnoxGatewayURL string `yaml:"knox_gateway_url" env:"KNOX_GATEWAY_URL"`
	// Knox JWT，以 hadoop-jwt Cookie 发送
	Token string `yaml:"token" env:"TOKEN"`
	// 完整 Cookie 头，优先级最高
	Cookie string `yaml:"cookie" env:"COOKIE"`
	User   string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// Knox knoxtoken 端点；为空时由网关地址推导
	TokenEndpoint string `yaml:"token_endpoint" env:"TOKEN_ENDPOINT"`
	// 一次性 passcode，换取 JWT 后以 Bearer 发送
	PasscodeToken string `yaml:"passcode_token" env:"PASSCODE_TOKEN"`
}

// HTTPAuthConfig HTTP/WS 传输的入站 JWT 认证；Secret 与 PublicKey 都为空时不启用
type HTTPAuthConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否启用入站认证
func (c HTTPAuthConfig) Enabled() bool {
	return c.Secret != "" || c.PublicKey != ""
}

// SanitizeConfig 结果脱敏配置
type SanitizeConfig struct {
	// 列表超过该长度时截断
	MaxItems int `yaml:"max_items" env:"MAX_ITEMS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径；stdio 传输下 stdout 会被替换为 stderr
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// AuditConfig 变更审计配置，记录每次变更类工具调用
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 审计落地方式: database, redis
	Sink string `yaml:"sink" env:"SINK"`
	// 数据库驱动: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 数据库连接串；sqlite 为文件路径
	DSN string `yaml:"dsn" env:"DSN"`
	// 启动时执行数据库迁移
	AutoMigrate  bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxOpenConns int  `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int  `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// Redis Stream 落地
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	Stream        string `yaml:"stream" env:"STREAM"`
	// Stream 近似最大长度，0 表示不裁剪
	StreamMaxLen int64 `yaml:"stream_max_len" env:"STREAM_MAX_LEN"`
	// 异步写入队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// ResolvedBaseURL 返回引擎地址；仅配置 Knox 网关时推导为 <gateway>/nifi-app/nifi-api
func (c *Config) ResolvedBaseURL() string {
	if c.NiFi.BaseURL != "" {
		return strings.TrimRight(c.NiFi.BaseURL, "/")
	}
	if c.Auth.KnoxGatewayURL != "" {
		return strings.TrimRight(c.Auth.KnoxGatewayURL, "/") + "/nifi-app/nifi-api"
	}
	return ""
}

// =============================================================================
// 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup 替换环境变量来源
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，未知字段视为错误
func (l *Loader) loadFromFile(cfg *Config) error {
	f, err := os.Open(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 校验
// =============================================================================

// Validate 校验配置，一次性报告全部问题
func (c *Config) Validate() error {
	if errs := c.problems(); len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) problems() []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP, TransportWS:
		if c.Server.Addr == "" {
			add("server.addr is required for %s transport", c.Server.Transport)
		}
	default:
		add("server.transport must be one of stdio, http, ws, got %q", c.Server.Transport)
	}
	if c.Server.ToolTimeout <= 0 {
		add("server.tool_timeout must be positive")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		add("server rate limit must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst == 0 {
		add("server.rate_limit_burst must be positive when rate_limit_rps is set")
	}

	base := c.ResolvedBaseURL()
	if base == "" {
		add("nifi.base_url or auth.knox_gateway_url is required")
	} else if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		add("nifi.base_url %q is not an absolute URL", base)
	}
	if c.NiFi.Timeout <= 0 {
		add("nifi.timeout must be positive")
	}
	if c.NiFi.RequestsPerSecond < 0 {
		add("nifi.requests_per_second must not be negative")
	}
	if (c.NiFi.ClientCert == "") != (c.NiFi.ClientKey == "") {
		add("nifi.client_cert and nifi.client_key must be set together")
	}
	if c.NiFi.PollInterval <= 0 {
		add("nifi.poll_interval must be positive")
	}
	if c.NiFi.Retry.MaxAttempts < 1 {
		add("nifi.retry.max_attempts must be at least 1")
	}
	if c.NiFi.Retry.InitialDelay < 0 || c.NiFi.Retry.MaxDelay < c.NiFi.Retry.InitialDelay {
		add("nifi.retry delays must satisfy 0 <= initial_delay <= max_delay")
	}

	if (c.Auth.User == "") != (c.Auth.Password == "") {
		add("auth.user and auth.password must be set together")
	}
	if c.HTTPAuth.Enabled() && c.Server.Transport == TransportStdio {
		add("http_auth applies only to http and ws transports")
	}

	if c.Sanitize.MaxItems <= 0 {
		add("sanitize.max_items must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate must be between 0 and 1")
	}

	if c.Audit.Enabled {
		switch c.Audit.Sink {
		case AuditSinkDatabase:
			switch c.Audit.Driver {
			case "postgres", "mysql", "sqlite":
			default:
				add("audit.driver must be one of postgres, mysql, sqlite, got %q", c.Audit.Driver)
			}
			if c.Audit.DSN == "" {
				add("audit.dsn is required for the database sink")
			}
		case AuditSinkRedis:
			if c.Audit.RedisAddr == "" || c.Audit.Stream == "" {
				add("audit.redis_addr and audit.stream are required for the redis sink")
			}
		default:
			add("audit.sink must be database or redis, got %q", c.Audit.Sink)
		}
		if c.Audit.QueueSize <= 0 {
			add("audit.queue_size must be positive")
		}
	}

	return errs
}

// =============================================================================
// 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
