package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// InitOutput is the result of the init command.
type InitOutput struct {
	Path          string                   `json:"path"`
	Key           string                   `json:"key"`
	SchemaVersion int                      `json:"schemaVersion"`
	FirstRun      bool                     `json:"firstRun"`
	Repaired      bool                     `json:"repaired"`
	Migrations    []schema.MigrationRecord `json:"migrations,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create, migrate or repair the local database",
		Long: `Open the local database, creating it on first run. A stored database
from an older schema is migrated and normalized, an unreadable one is
reset and flagged for recovery.

Example:
  erpstore init --db ./erp.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(commandContext(cmd), cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	out := InitOutput{
		Path:          opts.DBPath,
		Key:           st.mgr.Key(),
		SchemaVersion: st.init.DB.SchemaVersion,
		FirstRun:      st.init.FirstRun,
		Repaired:      st.init.Repaired,
		Migrations:    st.init.Migrations,
		Warnings:      st.init.Warnings,
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(out)
	}

	w := f.Writer
	switch {
	case out.FirstRun:
		fmt.Fprintf(w, "✓ Created %s (schema v%d)\n", out.Path, out.SchemaVersion)
	case out.Repaired:
		fmt.Fprintf(w, "! Repaired %s: stored data was unreadable and has been reset\n", out.Path)
	default:
		fmt.Fprintf(w, "✓ Opened %s (schema v%d)\n", out.Path, out.SchemaVersion)
	}
	for _, m := range out.Migrations {
		fmt.Fprintf(w, "  migrated v%d → v%d\n", m.From, m.To)
	}
	printWarnings(f, out.Warnings)
	return nil
}

// StatusOutput is the result of the status command.
type StatusOutput struct {
	Path           string          `json:"path"`
	Key            string          `json:"key"`
	SchemaVersion  int             `json:"schemaVersion"`
	UpdatedAt      string          `json:"updatedAt"`
	Counts         map[string]int  `json:"counts"`
	Snapshots      int             `json:"snapshots"`
	Backups        int             `json:"backups"`
	OpenSession    string          `json:"openSession,omitempty"`
	RemoteRev      int64           `json:"remoteRev,omitempty"`
	RemoteSyncedAt string          `json:"remoteSyncedAt,omitempty"`
	Recovery       *store.Recovery `json:"recovery,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Summarize the local database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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
	snaps, err := st.mgr.ListSnapshots(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}
	backups, err := st.mgr.ListBackups(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list backups", err)
	}

	out := StatusOutput{
		Path:           opts.DBPath,
		Key:            st.mgr.Key(),
		SchemaVersion:  db.SchemaVersion,
		UpdatedAt:      db.Meta.UpdatedAt,
		Counts:         db.Counts(),
		Snapshots:      len(snaps),
		Backups:        len(backups),
		RemoteRev:      db.Meta.RemoteRev,
		RemoteSyncedAt: db.Meta.RemoteSyncedAt,
	}
	if s := db.OpenSession(); s != nil {
		out.OpenSession = s.ID
	}
	if rec := st.mgr.Recovery(); rec.Active {
		out.Recovery = &rec
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(out)
	}

	w := f.Writer
	fmt.Fprintf(w, "Database: %s (key %s, schema v%d)\n", out.Path, out.Key, out.SchemaVersion)
	fmt.Fprintf(w, "Updated:  %s\n", out.UpdatedAt)
	if out.Recovery != nil {
		fmt.Fprintf(w, "Recovery: %s (%s)\n", out.Recovery.Reason, out.Recovery.Details)
	}
	printCounts(f, out.Counts)
	fmt.Fprintf(w, "Snapshots: %d, backups: %d\n", out.Snapshots, out.Backups)
	if out.OpenSession != "" {
		fmt.Fprintf(w, "Cash register open: %s\n", out.OpenSession)
	} else {
		fmt.Fprintln(w, "Cash register closed")
	}
	if out.RemoteRev > 0 {
		fmt.Fprintf(w, "Remote rev %d, synced %s\n", out.RemoteRev, out.RemoteSyncedAt)
	}
	return nil
}

func printCounts(f *OutputFormatter, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(f.Writer, "  %-15s %d\n", k, counts[k])
	}
}

func printWarnings(f *OutputFormatter, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(f.Writer, "%d warning(s)\n", len(warnings))
	if !f.Verbose {
		return
	}
	for _, w := range warnings {
		fmt.Fprintf(f.Writer, "  - %s\n", w)
	}
}
