package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 以文本形式输出迁移操作结果，供 nifimcp migrate 使用
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 设置输出
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.output, format, args...)
}

// RunUp 执行全部未应用的迁移，并列出本次应用的迁移
func (c *CLI) RunUp(ctx context.Context) error {
	before, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	c.printf("Applying audit schema migrations...\n")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	for _, s := range before {
		if !s.Applied && s.Version <= version {
			c.printf("  applied %06d_%s\n", s.Version, s.Name)
		}
	}
	c.printf("Migrations complete. Current version: %d\n", version)
	return nil
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	c.printf("Rolling back last migration...\n")
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	version, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.printf("Rollback complete. Current version: %d\n", version)
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	switch {
	case version == 0:
		c.printf("No migrations applied yet.\n")
	case dirty:
		c.printf("Current version: %d (dirty)\n", version)
	default:
		c.printf("Current version: %d\n", version)
	}
	return nil
}

// RunStatus 打印每个迁移的状态
func (c *CLI) RunStatus(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}

// RunInfo 打印迁移摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	c.printf("Audit schema:\n")
	for _, row := range []struct {
		label string
		value any
	}{
		{"Current Version:", info.CurrentVersion},
		{"Dirty:", info.Dirty},
		{"Total Migrations:", info.TotalMigrations},
		{"Applied Migrations:", info.AppliedMigrations},
		{"Pending Migrations:", info.PendingMigrations},
	} {
		c.printf("  %-20s%v\n", row.label, row.value)
	}
	return nil
}
