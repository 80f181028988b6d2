package audit

import (
	"context"
	"fmt"

	"github.com/BaSui01/nifimcp/internal/database"
)

// DBSink 写入关系型数据库的 mutation_audit 表
type DBSink struct {
	pool *database.PoolManager
}

// NewDBSink 基于连接池创建 DBSink
func NewDBSink(pool *database.PoolManager) *DBSink {
	return &DBSink{pool: pool}
}

// Write 插入一条记录
func (s *DBSink) Write(ctx context.Context, e Entry) error {
	if err := s.pool.DB().WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent 按 created_at 倒序查询
func (s *DBSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.pool.DB().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, nil
}

// Close 关闭连接池
func (s *DBSink) Close() error {
	return s.pool.Close()
}
