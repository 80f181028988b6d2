// =============================================================================
// nifimcp 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		NiFi:      DefaultNiFiConfig(),
		Sanitize:  DefaultSanitizeConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Audit:     DefaultAuditConfig(),
	}
}

// DefaultServerConfig 返回默认服务端配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport:       TransportStdio,
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		ToolTimeout:     60 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		MaxInFlight:     16,
	}
}

// DefaultNiFiConfig 返回默认引擎配置，只读闸门默认开启
func DefaultNiFiConfig() NiFiConfig {
	return NiFiConfig{
		Timeout:      30 * time.Second,
		ReadOnly:     true,
		VerifySSL:    true,
		PollInterval: 500 * time.Millisecond,
		PollTimeout:  2 * time.Minute,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// DefaultSanitizeConfig 返回默认脱敏配置
func DefaultSanitizeConfig() SanitizeConfig {
	return SanitizeConfig{MaxItems: 200}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Addr:    ":9091",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "nifimcp",
		SampleRate:   0.1,
	}
}

// DefaultAuditConfig 返回默认审计配置，默认关闭
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:      false,
		Sink:         AuditSinkDatabase,
		Driver:       "sqlite",
		AutoMigrate:  true,
		MaxOpenConns: 10,
		MaxIdleConns: 2,
		Stream:       "nifimcp:audit",
		StreamMaxLen: 100000,
		QueueSize:    256,
	}
}
