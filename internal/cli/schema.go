package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridhouse/sheetsync/internal/schema"
)

// SchemaResult holds schema vet results.
type SchemaResult struct {
	Valid   bool     `json:"valid"`
	Project string   `json:"project,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Rows    int      `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with CUE sheet schemas",
	}
	cmd.AddCommand(newSchemaVetCommand(rootOpts))
	return cmd
}

func newSchemaVetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vet <schema-dir>",
		Short: "Validate a CUE sheet schema",
		Long: `Validate a CUE sheet schema directory.

Checks that the project declaration parses, that column names are
unique, and that every seed row carries an identity and only known
fields.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaVet(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaVet(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := schema.Load(dir)
	if err != nil {
		if ferr := formatter.Error(err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitFailure, Message: "invalid schema", Err: err}
	}

	if opts.Format == "json" {
		return formatter.Success(SchemaResult{
			Valid:   true,
			Project: def.ID,
			Columns: def.ColumnNames(),
			Rows:    len(def.Rows),
		})
	}
	return formatter.Success(fmt.Sprintf("✓ Schema valid: project %q, %d column(s), %d seed row(s)",
		def.ID, len(def.Columns), len(def.Rows)))
}
