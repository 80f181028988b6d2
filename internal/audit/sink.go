package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/internal/database"
	"github.com/BaSui01/nifimcp/internal/migration"
)

// Sink 审计记录的持久化目标
type Sink interface {
	Write(ctx context.Context, e Entry) error
	// Recent 按时间倒序返回最近的记录
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// OpenSink 按配置打开审计目标；database 目标在 AutoMigrate 时先执行迁移
func OpenSink(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Sink {
	case config.AuditSinkDatabase:
		if cfg.AutoMigrate {
			if err := migrateUp(ctx, cfg); err != nil {
				return nil, err
			}
		}
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = cfg.MaxOpenConns
		poolCfg.MaxIdleConns = cfg.MaxIdleConns
		pool, err := database.Open(cfg.Driver, cfg.DSN, poolCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		return NewDBSink(pool), nil
	case config.AuditSinkRedis:
		return NewStreamSink(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported audit sink: %q", cfg.Sink)
	}
}

func migrateUp(ctx context.Context, cfg config.AuditConfig) error {
	m, err := migration.NewMigratorFromAuditConfig(cfg)
	if err != nil {
		return fmt.Errorf("audit migration: %w", err)
	}
	defer m.Close()
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("audit migration: %w", err)
	}
	return nil
}

// Open 打开审计目标并启动异步 Recorder
func Open(ctx context.Context, cfg config.AuditConfig, observer Observer, logger *zap.Logger) (*Recorder, error) {
	sink, err := OpenSink(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewRecorder(sink, cfg.QueueSize, observer, logger), nil
}
