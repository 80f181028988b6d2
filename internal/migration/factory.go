package migration

import (
	"fmt"

	"github.com/BaSui01/nifimcp/config"
)

// NewMigratorFromAuditConfig 按审计配置创建迁移器
func NewMigratorFromAuditConfig(cfg config.AuditConfig) (*DefaultMigrator, error) {
	if cfg.Sink != config.AuditSinkDatabase {
		return nil, fmt.Errorf("audit sink %q has no schema to migrate", cfg.Sink)
	}
	return NewMigratorFromURL(cfg.Driver, cfg.DSN)
}

// NewMigratorFromURL 按驱动名与连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
