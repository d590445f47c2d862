package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/merge"
	"github.com/roach88/erpstore/internal/remote"
	"github.com/roach88/erpstore/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Remote   string
	Tenant   string
	Token    string
	Prefer   string
	SumStock bool
	Pull     bool
	Push     bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := rootOpts.config().Remote
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile with the remote key-value service",
		Long: `Merge the remote copy of the database into the local one, save the
result with a snapshot and push it back. When the tenant has no remote
copy yet the local database is pushed as is.

--pull merges without pushing, --push overwrites the remote copy.
Conflicts are resolved in favour of the local side unless --prefer import.

Exit codes:
  0 - Synchronized
  1 - Remote refused (account blocked, no remote data for --pull)
  2 - Command error (missing remote settings, store unavailable)

Examples:
  erpstore sync --remote https://sync.example.com --tenant loja-1
  erpstore sync --pull --prefer import`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", cfg.URL, "base URL of the remote service")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", cfg.Tenant, "tenant identifier")
	cmd.Flags().StringVar(&opts.Token, "token", cfg.Token, "access token sent with pushes")
	cmd.Flags().StringVar(&opts.Prefer, "prefer", string(merge.PreferCurrent), "conflict winner (current|import)")
	cmd.Flags().BoolVar(&opts.SumStock, "sum-stock", false, "add local and remote stock quantities instead of picking one")
	cmd.Flags().BoolVar(&opts.Pull, "pull", false, "merge the remote copy without pushing")
	cmd.Flags().BoolVar(&opts.Push, "push", false, "overwrite the remote copy with the local database")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	if opts.Remote == "" || opts.Tenant == "" {
		return NewExitError(ExitCommandError, "remote URL and tenant are required (--remote/--tenant or ERP_REMOTE_URL/ERP_REMOTE_TENANT)")
	}
	if opts.Pull && opts.Push {
		return NewExitError(ExitCommandError, "--pull and --push are mutually exclusive")
	}
	prefer := merge.Prefer(opts.Prefer)
	if prefer != merge.PreferCurrent && prefer != merge.PreferImport {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --prefer %q: must be current or import", opts.Prefer))
	}

	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	f := opts.formatter(cmd)
	f.VerboseLog("syncing %s with %s (tenant %s)", opts.DBPath, opts.Remote, opts.Tenant)

	client := remote.NewHTTPClient(opts.Remote, opts.Tenant, opts.Token, opts.config().Remote.Timeout)
	s := syncer.New(st.mgr, client, syncer.Options{Logger: st.log})
	syncOpts := syncer.SyncOptions{
		Prefer:      prefer,
		SumStockQty: opts.SumStock,
		PhoneRegion: opts.config().Remote.PhoneRegion,
	}

	var res syncer.Result
	switch {
	case opts.Pull:
		res, err = s.Pull(ctx, syncOpts)
	case opts.Push:
		res, err = s.Push(ctx)
	default:
		res, err = s.Sync(ctx, syncOpts)
	}
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrAccountBlocked):
			return WrapExitError(ExitFailure, "sync refused", err).WithReason(CodeSyncRefused)
		case errors.Is(err, syncer.ErrRemoteNotFound):
			return WrapExitError(ExitFailure, "nothing to pull", err).WithReason(CodeNothingToPull)
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if f.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintf(f.Writer, "✓ %s (remote rev %d)\n", res.Action, res.Rev)
	if res.Report != nil {
		fmt.Fprintf(f.Writer, "  added %d, updated %d, conflicts %d\n",
			len(res.Report.Added), len(res.Report.Updated), len(res.Report.Conflicts))
	}
	printWarnings(f, res.Warnings)
	return nil
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Data    string
	Blocked []string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := rootOpts.config().Server
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the remote key-value service",
		Long: `Serve the per-tenant database store used by sync. Each tenant holds
one JSON database with a revision that increases on every save. Blocked
tenants are refused on every route.

Example:
  erpstore serve --addr :8787 --data ./remote.db --blocked loja-9`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().StringVar(&opts.Data, "data", cfg.DBPath, "path to the service SQLite database")
	cmd.Flags().StringSliceVar(&opts.Blocked, "blocked", cfg.BlockedTenants, "tenants to refuse")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	log := opts.commandLogger(cmd)

	db, err := kv.OpenSQLite(opts.Data)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open service database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("error closing database")
		}
	}()

	srv := remote.NewServer(db, remote.ServerOptions{
		BlockedTenants: opts.Blocked,
		Logger:         log,
	})

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(opts.Addr)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Remote service listening on %s\n", opts.Addr)

	select {
	case err := <-errc:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	return nil
}
