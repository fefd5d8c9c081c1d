package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridhouse/sheetsync/internal/config"
	"github.com/gridhouse/sheetsync/internal/schema"
	"github.com/gridhouse/sheetsync/internal/server"
	"github.com/gridhouse/sheetsync/internal/server/storage"
	"github.com/gridhouse/sheetsync/internal/sheet"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var database string
	var schemaDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sheet synchronization service",
		Long: `Run the sheet synchronization service.

Serves the project REST API and the websocket delta stream, backed by a
sqlite database. When a schema directory is configured the declared
project is created and seeded on startup.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.Config)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "loading config", Err: err}
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if database != "" {
				cfg.Server.Database = database
			}
			if schemaDir != "" {
				cfg.Server.Schema = schemaDir
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&database, "database", "", "sqlite database path (overrides config)")
	cmd.Flags().StringVar(&schemaDir, "schema", "", "CUE schema directory to seed from (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(cfg.Server.Database)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "opening database", Err: err}
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Schema != "" {
		if err := seedFromSchema(ctx, store, cfg.Server.Schema); err != nil {
			return &ExitError{Code: ExitFailure, Message: "seeding from schema", Err: err}
		}
	}

	srv := server.New(store, server.WithToken(cfg.Server.Token))
	slog.Info("service starting", "addr", cfg.Server.Addr, "database", cfg.Server.Database)
	if err := srv.Serve(ctx, cfg.Server.Addr); err != nil {
		return &ExitError{Code: ExitFailure, Message: "serving", Err: err}
	}
	return nil
}

// seedFromSchema creates the declared project if it does not exist yet.
// An already existing project is left untouched so restarts do not
// clobber live data.
func seedFromSchema(ctx context.Context, store *storage.Storage, dir string) error {
	def, err := schema.Load(dir)
	if err != nil {
		return err
	}

	err = store.CreateProject(ctx, def.ID, def.ColumnNames())
	var inv *sheet.InvariantViolation
	if errors.As(err, &inv) {
		slog.Info("project already exists, skipping seed", "project", def.ID)
		return nil
	}
	if err != nil {
		return err
	}

	identity := def.Columns[0].Name
	for _, row := range def.SeedRows() {
		delete(row.Fields, identity)
		if err := store.AddRow(ctx, def.ID, row.Identity, row.Fields); err != nil {
			return fmt.Errorf("seeding row %s: %w", row.Identity, err)
		}
	}
	slog.Info("project seeded", "project", def.ID, "columns", len(def.Columns), "rows", len(def.Rows))
	return nil
}
