package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/ledger"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/store"
)

// localStore is an initialized Manager over the SQLite file named by --db.
type localStore struct {
	kv   *kv.SQLite
	mgr  *store.Manager
	init store.InitResult
	log  *logger.Logger
}

// commandLogger writes structured logs to the formatter's diagnostic stream.
// --verbose lowers the level to debug.
func (o *RootOptions) commandLogger(cmd *cobra.Command) *logger.Logger {
	cfg := o.config()
	level := cfg.App.LogLevel
	if level == "" {
		level = "warn"
	}
	if o.Verbose {
		level = "debug"
	}
	return logger.New(logger.Config{
		Env:    cfg.App.Env,
		Level:  level,
		Output: o.formatter(cmd).diag(),
	})
}

// openStore opens the database file and runs Init on it.
func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command) (*localStore, error) {
	if o.DBPath == "" {
		return nil, NewExitError(ExitCommandError, "no database path: set --db or ERP_DB_PATH")
	}
	log := o.commandLogger(cmd)

	db, err := kv.OpenSQLite(o.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	cfg := o.config().Store
	mgr := store.New(db, store.Options{
		Key:          o.Key,
		MaxSnapshots: cfg.MaxSnapshots,
		MaxBackups:   cfg.MaxBackups,
		Cooldown:     cfg.SnapshotCooldown,
		Logger:       log,
	})
	res, err := mgr.Init(ctx)
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to initialize store", err)
	}
	return &localStore{kv: db, mgr: mgr, init: res, log: log}, nil
}

func (s *localStore) ledger() *ledger.Ledger {
	return ledger.New(s.mgr, ledger.Options{
		IDs:    ids.UUIDv7Generator{},
		Logger: s.log,
	})
}

func (s *localStore) Close() {
	if err := s.kv.Close(); err != nil {
		s.log.Error().Err(err).Msg("error closing database")
	}
}

// ledgerExit maps a ledger failure onto an ExitError carrying its code.
func ledgerExit(op string, err error) error {
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s [%s]", op, lerr.Code), err)
	}
	return WrapExitError(ExitFailure, op, err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
