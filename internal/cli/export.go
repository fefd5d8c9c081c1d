package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridhouse/sheetsync/internal/api"
	"github.com/gridhouse/sheetsync/internal/config"
	"github.com/gridhouse/sheetsync/internal/export"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	var project string
	var baseURL string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project to an xlsx workbook",
		Long: `Export a project to an xlsx workbook.

Fetches the project's columns, rows and style overrides from the
service and writes them to a workbook. Image URLs are embedded as
pictures.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.Config)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "loading config", Err: err}
			}
			if project != "" {
				cfg.Client.Project = project
			}
			if baseURL != "" {
				cfg.Client.BaseURL = baseURL
			}
			if cfg.Client.Project == "" {
				return &ExitError{Code: ExitCommandError, Message: "no project configured (use --project)"}
			}
			return runExport(cmd.Context(), rootOpts, cfg, output, cmd)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "sheet.xlsx", "output workbook path")
	cmd.Flags().StringVar(&project, "project", "", "project to export (overrides config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "service base URL (overrides config)")

	return cmd
}

func runExport(ctx context.Context, opts *RootOptions, cfg *config.Config, output string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	client := api.NewClient(cfg.Client.BaseURL, cfg.Client.Project, api.StaticToken(cfg.Client.Token))

	snap, err := fetchSnapshot(ctx, client)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "fetching project", Err: err}
	}
	formatter.VerboseLog("Fetched %d columns, %d rows", len(snap.Headers), len(snap.Rows))

	f, err := os.Create(output)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "creating output file", Err: err}
	}
	defer f.Close()

	exporter := export.New(&export.HTTPFetcher{})
	if err := exporter.Export(ctx, snap, f); err != nil {
		return &ExitError{Code: ExitFailure, Message: "writing workbook", Err: err}
	}

	return formatter.Success(fmt.Sprintf("Exported %d rows to %s", len(snap.Rows), output))
}

// fetchSnapshot pulls the project state into a local store and returns
// its snapshot.
func fetchSnapshot(ctx context.Context, client *api.Client) (sheet.Snapshot, error) {
	columns, err := client.FetchColumns(ctx)
	if err != nil {
		return sheet.Snapshot{}, err
	}
	rows, err := client.FetchRows(ctx)
	if err != nil {
		return sheet.Snapshot{}, err
	}
	styles, err := client.FetchStyles(ctx)
	if err != nil {
		return sheet.Snapshot{}, err
	}

	st := store.New()
	if err := st.Seed(columns, rows); err != nil {
		return sheet.Snapshot{}, err
	}
	for key, payload := range styles {
		err := st.ApplyRemote(sheet.SetStyle{Identity: key.Identity, Header: key.Header, Style: payload})
		if err != nil {
			return sheet.Snapshot{}, err
		}
	}
	return st.Snapshot(), nil
}
