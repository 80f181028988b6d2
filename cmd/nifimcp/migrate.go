package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/BaSui01/nifimcp/config"
	"github.com/BaSui01/nifimcp/internal/audit"
	"github.com/BaSui01/nifimcp/internal/migration"
)

// =============================================================================
// 🗄️ 审计库迁移与查询
// =============================================================================

// runMigrate 处理 migrate 子命令
func runMigrate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printMigrateUsage(stderr)
		return 2
	}

	sub, subargs := args[0], args[1:]
	switch sub {
	case "up", "down", "status", "version", "info":
	case "help", "-h", "--help":
		printMigrateUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage(stderr)
		return 2
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := fs.Parse(subargs); err != nil {
		return 2
	}

	var (
		migrator *migration.DefaultMigrator
		err      error
	)
	if *dbType != "" && *dbURL != "" {
		migrator, err = migration.NewMigratorFromURL(*dbType, *dbURL)
	} else {
		var cfg *config.Config
		cfg, err = loadAuditConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if *dbType != "" {
			cfg.Audit.Driver = *dbType
		}
		migrator, err = migration.NewMigratorFromAuditConfig(cfg.Audit)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	ctx := context.Background()

	switch sub {
	case "up":
		err = cli.RunUp(ctx)
	case "down":
		err = cli.RunDown(ctx)
	case "status":
		err = cli.RunStatus(ctx)
	case "version":
		err = cli.RunVersion(ctx)
	case "info":
		err = cli.RunInfo(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Migration failed: %v\n", err)
		return 1
	}
	return 0
}

// loadAuditConfig 只加载配置，不要求引擎地址等 serve 才需要的字段
func loadAuditConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Audit schema migrations

Usage:
  nifimcp migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Roll back the last migration
  status    Show migration status
  version   Show current migration version
  info      Show migration summary

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    postgres, mysql or sqlite (default: audit.driver)
  --db-url <url>      Connection string (default: audit.dsn)`)
}

// runAudit 打印最近的变更审计记录
func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	limit := fs.Int("limit", 20, "Number of entries to show")
	asJSON := fs.Bool("json", false, "Print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(stderr, "--limit must be positive")
		return 2
	}

	cfg, err := loadAuditConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// 只读查询，不执行迁移
	cfg.Audit.AutoMigrate = false

	ctx := context.Background()
	sink, err := audit.OpenSink(ctx, cfg.Audit, zap.NewNop())
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open audit sink: %v\n", err)
		return 1
	}
	defer sink.Close()

	entries, err := sink.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read audit entries: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(stderr, "Failed to encode entries: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tOUTCOME\tCODE\tSUBJECT\tDURATION")
	for _, e := range entries {
		outcome := e.Outcome
		if e.Destructive {
			outcome += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\n",
			e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), e.Tool, outcome, e.ErrorCode, e.Subject, e.DurationMs)
	}
	_ = tw.Flush()
	fmt.Fprintf(stdout, "\n%d entries (* destructive)\n", len(entries))
	return 0
}
