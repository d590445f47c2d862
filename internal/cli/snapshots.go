package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/ledger"
	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// NewSnapshotsCommand creates the snapshots command group.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List and restore database snapshots",
		Long: `Snapshots are full copies of the database taken on save (at most once
per cooldown period) and always before voids, imports, restores and syncs.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List snapshots, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Replace the database with a snapshot",
		Long: `Restore a snapshot as the current database. The restored data is
normalized, saved and snapshotted again.

Example:
  erpstore snapshots restore 0190f7e2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsRestore(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func runSnapshotsList(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.mgr.ListSnapshots(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(f.Writer, "No snapshots.")
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(f.Writer, "%s  %s  v%d  estoque=%d vendas=%d movimentos=%d\n",
			s.ID, s.At, s.SchemaVersion,
			s.Counts[schema.KeyEstoque], s.Counts[schema.KeyVendas], s.Counts[schema.KeyStockMovements])
	}
	return nil
}

func runSnapshotsRestore(opts *RootOptions, id string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.mgr.RestoreSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("snapshot %s not found", id), err)
		}
		return WrapExitError(ExitFailure, "restore failed", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(map[string]any{"id": id, "save": res})
	}
	fmt.Fprintf(f.Writer, "✓ Restored snapshot %s\n", id)
	printWarnings(f, res.Warnings)
	return nil
}

// MovementsOptions holds flags for the movements command.
type MovementsOptions struct {
	*RootOptions
	Cod   string
	Limit int
}

// NewMovementsCommand creates the movements command.
func NewMovementsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MovementsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List recent stock movements",
		Long: `List the most recent entries of the stock movement ledger in
chronological order. Each entry shows the signed quantity change and the
product quantity after it.

Examples:
  erpstore movements --cod 7891000 --limit 20
  erpstore movements --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMovements(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cod, "cod", "", "only movements of this product code")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries (0 for all)")

	return cmd
}

func runMovements(opts *MovementsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ledger().ListMovements(ctx, ledger.MovementFilter{ProductCod: opts.Cod, Limit: opts.Limit})
	if err != nil {
		return ledgerExit("list movements", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(f.Writer, "No movements.")
		return nil
	}
	for _, mv := range list {
		fmt.Fprintf(f.Writer, "%s  %-9s %-14s %+5d → %-5v %s\n",
			mv.AtISO, mv.Type, mv.ProductCod, mv.QtyDelta, mv.Meta["qtyAfter"], mv.Reason)
	}
	return nil
}
