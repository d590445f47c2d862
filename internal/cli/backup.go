package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
	Pretty bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a checksummed backup of the database",
		Long: `Export the local database as a backup envelope. The envelope carries
the schema version, export time and a checksum over its canonical form.

Without --output the backup is written to stdout.

Examples:
  erpstore export --db ./erp.db -o backup.json
  erpstore export --pretty > backup.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write backup to file instead of stdout")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent the backup")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	db, err := st.mgr.Get(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	data, err := st.mgr.ExportDB(db, store.ExportOptions{Pretty: opts.Pretty})
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	f := opts.formatter(cmd)
	if opts.Output == "" {
		_, err := f.Writer.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write backup", err)
	}
	if f.Format == "json" {
		return f.Success(map[string]any{"path": opts.Output, "bytes": len(data)})
	}
	fmt.Fprintf(f.Writer, "✓ Exported %d bytes to %s\n", len(data), opts.Output)
	return nil
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Merge bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <backup-file>",
		Short: "Replace the database with a backup",
		Long: `Import a backup envelope, replacing the local database. The current
database is kept in the backups list first and a snapshot is taken of
the imported data. Older schema versions are migrated.

A checksum mismatch is reported as a warning and does not stop the import.

Example:
  erpstore import --db ./erp.db backup.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "merge into the current database (not supported)")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	text, err := readBackupFile(path)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.mgr.ImportDB(ctx, text, store.ImportOptions{Merge: opts.Merge})
	if err != nil {
		if errors.Is(err, store.ErrMergeImportUnsupported) {
			return WrapExitError(ExitCommandError, "--merge is not supported; use sync to reconcile", err)
		}
		return WrapExitError(ExitFailure, "import failed", err)
	}
	return outputImport(opts.formatter(cmd), path, res)
}

func outputImport(f *OutputFormatter, source string, res store.ImportResult) error {
	if f.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintf(f.Writer, "✓ Imported %s (schema v%d)\n", source, res.Preview.SchemaVersion)
	if res.BackupID != "" {
		fmt.Fprintf(f.Writer, "  previous database kept as backup %s\n", res.BackupID)
	}
	if !res.Preview.ChecksumOK {
		fmt.Fprintln(f.Writer, "  ! checksum did not match")
	}
	printWarnings(f, res.Warnings)
	return nil
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <backup-file>",
		Short: "Inspect a backup without importing it",
		Long: `Parse a backup envelope and report its schema version, export time,
checksum status and collection sizes. The local database is not opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(rootOpts, args[0], cmd)
		},
	}
}

func runPreview(opts *RootOptions, path string, cmd *cobra.Command) error {
	text, err := readBackupFile(path)
	if err != nil {
		return err
	}
	p, err := store.PreviewImport(text)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid backup", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(p)
	}
	status := "ok"
	if !p.ChecksumOK {
		status = "MISMATCH"
	}
	fmt.Fprintf(f.Writer, "Backup %s\n", path)
	fmt.Fprintf(f.Writer, "  schema v%d, exported %s\n", p.SchemaVersion, p.ExportedAt)
	fmt.Fprintf(f.Writer, "  checksum %s: %s\n", p.Checksum, status)
	printCounts(f, p.Counts)
	printWarnings(f, p.Warnings)
	return nil
}

// NewBackupsCommand creates the backups command group.
func NewBackupsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and restore pre-import backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List pre-import backups, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupsList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "restore <backup-id>",
		Short:         "Import a pre-import backup",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupsRestore(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runBackupsList(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.mgr.ListBackups(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list backups", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(f.Writer, "No backups.")
		return nil
	}
	for _, b := range list {
		fmt.Fprintf(f.Writer, "%s  %s  %d bytes  %s\n", b.ID, b.At, b.Bytes, b.Checksum)
	}
	return nil
}

func runBackupsRestore(opts *RootOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	text, err := st.mgr.ReadBackup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrBackupNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("backup %s not found", id), err)
		}
		return WrapExitError(ExitFailure, "failed to read backup", err)
	}
	res, err := st.mgr.ImportDB(ctx, text, store.ImportOptions{})
	if err != nil {
		return WrapExitError(ExitFailure, "restore failed", err)
	}
	return outputImport(opts.formatter(cmd), "backup "+id, res)
}

func readBackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
	}
	return string(data), nil
}
