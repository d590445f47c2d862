package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
	Key     string

	// Config supplies defaults for flags and the remote and server settings.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Execute runs the erpstore CLI with the process arguments and returns the
// exit code. A failure is reported once through the output formatter.
func Execute() int {
	cfg, err := config.Load()
	if err != nil || cfg == nil {
		cfg = &config.Config{}
	}
	cmd, opts := buildRootCommand(cfg)
	return execute(cmd, opts)
}

func execute(cmd *cobra.Command, opts *RootOptions) int {
	cmd.SilenceErrors = true
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	_ = opts.formatter(cmd).Fail(err, nil)
	return GetExitCode(err)
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd, _ := buildRootCommand(cfg)
	return cmd
}

func buildRootCommand(cfg *config.Config) (*cobra.Command, *RootOptions) {
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "erpstore",
		Short: "erpstore - local POS and inventory data engine",
		Long: `Operate the local point-of-sale database: inspect it, export and
import checksummed backups, browse and restore snapshots, reconcile with
the remote key-value service and serve that service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", cfg.Store.DBPath, "path to the local SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Key, "key", cfg.Store.Key, "storage key of the database")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewBackupsCommand(opts))
	cmd.AddCommand(NewMovementsCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd, opts
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		o.Config = &config.Config{}
	}
	return o.Config
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
