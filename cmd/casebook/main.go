package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/casebook/internal"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/mcpserver"
	"github.com/starford/casebook/internal/storage"
	pkgconfig "github.com/starford/casebook/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if t := cmd.String("tenant"); t != "" {
		cfg.Reconcile.Tenant = t
	}
	return cfg, nil
}

// open wires a runtime for one-shot commands. Logs go to stderr so that
// stdout carries only the JSON report.
func open(cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncCalendar(ctx context.Context, cmd *cli.Command) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var dr calendar.DateRange
	loc := rt.Engine.Location()
	if v := cmd.String("from"); v != "" {
		if dr.From, err = time.ParseInLocation(time.DateOnly, v, loc); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if v := cmd.String("to"); v != "" {
		to, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		dr.To = to.AddDate(0, 0, 1)
	}

	rep, err := rt.Engine.SyncCalendar(ctx, rt.Config.Reconcile.Tenant, dr)
	if perr := printJSON(rep); perr != nil {
		return perr
	}
	return err
}

func reconcile(ctx context.Context, cmd *cli.Command) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rep, err := rt.Engine.LinkOrphanedRecords(ctx, rt.Config.Reconcile.Tenant)
	if perr := printJSON(rep); perr != nil {
		return perr
	}
	return err
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	inbox := rt.Inbox
	if dir := cmd.Args().First(); dir != "" {
		if inbox, err = storage.NewFS(dir); err != nil {
			return fmt.Errorf("open %s: %w", dir, err)
		}
	}
	if inbox == nil {
		return fmt.Errorf("no directory given and inbox.path is not configured")
	}

	rep, err := rt.Engine.IngestInbox(ctx, rt.Config.Reconcile.Tenant, inbox)
	if perr := printJSON(rep); perr != nil {
		return perr
	}
	return err
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return mcpserver.New(rt.Engine, rt.Config.Reconcile.Tenant).ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:   "casebook",
		Usage:  "Reconcile calendar sessions and client documents for a practice",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "tenant",
				Usage:   "Tenant to operate on, overrides reconcile.tenant",
				Sources: cli.EnvVars("CASEBOOK_TENANT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the inbox watcher",
				Action: serve,
			},
			{
				Name:  "sync",
				Usage: "Import calendar events as sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "First day, YYYY-MM-DD"},
					&cli.StringFlag{Name: "to", Usage: "Last day, inclusive, YYYY-MM-DD"},
				},
				Action: syncCalendar,
			},
			{
				Name:   "reconcile",
				Usage:  "Retry linking every record that has no session",
				Action: reconcile,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest every document in a directory (default: inbox.path)",
				ArgsUsage: "[dir]",
				Action:    ingest,
			},
			{
				Name:   "mcp",
				Usage:  "Serve reconciliation tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
