// Package syncer reconciles the local database with the remote copy on
// demand, through the merge engine and the persistence manager.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/merge"
	"github.com/roach88/erpstore/internal/normalize"
	"github.com/roach88/erpstore/internal/remote"
	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// ErrAccountBlocked is returned when the remote service reports the tenant
// as suspended. Nothing is written locally or remotely after it is seen.
var ErrAccountBlocked = errors.New("remote account blocked")

// ErrRemoteNotFound is returned by Pull when the tenant has no remote data.
var ErrRemoteNotFound = errors.New("remote database not found")

// Action names what a sync did.
type Action string

const (
	ActionPushed Action = "pushed"
	ActionMerged Action = "merged"
	ActionPulled Action = "pulled"
)

// Options configures a Syncer.
type Options struct {
	Clock  ids.Clock
	Logger *logger.Logger
}

// SyncOptions tunes one reconciliation.
type SyncOptions struct {
	// Prefer picks the conflict winner; current is the local side.
	Prefer merge.Prefer
	// SumStockQty adds local and remote estoque quantities instead of
	// resolving them by Prefer. Off by default so that repeated syncs
	// of the same data are stable.
	SumStockQty bool
	// PhoneRegion is the country used to match debtors by phone number.
	// Empty means merge.DefaultPhoneRegion.
	PhoneRegion string
}

// Result reports a completed sync.
type Result struct {
	Action   Action           `json:"action"`
	Rev      int64            `json:"rev"`
	Report   *merge.Report    `json:"report,omitempty"`
	Save     store.SaveResult `json:"save"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Syncer drives local-vs-remote reconciliation.
type Syncer struct {
	store  *store.Manager
	remote remote.Client
	clock  ids.Clock
	log    *logger.Logger
}

// New creates a Syncer.
func New(mgr *store.Manager, client remote.Client, opts Options) *Syncer {
	if opts.Clock == nil {
		opts.Clock = ids.SystemClock
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Syncer{store: mgr, remote: client, clock: opts.Clock, log: log.With("syncer")}
}

// Sync merges the remote copy into the local database, persists the result
// with a snapshot, pushes it back and records the new remote revision.
// When the tenant has no remote data the local database is pushed as is.
func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (Result, error) {
	st, err := s.remote.Status(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sync: status: %w", err)
	}
	if st.Blocked {
		return Result{}, s.blocked("status")
	}
	if !st.Exists {
		return s.push(ctx)
	}

	load, err := s.remote.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("sync: load: %w", err)
	}
	if load.Blocked {
		return Result{}, s.blocked("load")
	}
	if !load.OK {
		if load.Error == remote.ErrorNotFound {
			return s.push(ctx)
		}
		return Result{}, fmt.Errorf("sync: load: %s", load.Error)
	}

	merged, report, warnings, err := s.mergeRemote(ctx, load.DB, opts)
	if err != nil {
		return Result{}, fmt.Errorf("sync: %w", err)
	}
	saved, err := s.store.SafeSave(ctx, merged, store.SaveOptions{ForceSnapshot: true})
	if err != nil {
		return Result{}, fmt.Errorf("sync: %w", err)
	}

	res, err := s.pushDB(ctx, saved.DB)
	if err != nil {
		return Result{}, err
	}
	res.Action = ActionMerged
	res.Report = &report
	res.Warnings = append(warnings, res.Warnings...)
	s.log.Info().
		Int64("rev", res.Rev).
		Int("added", len(report.Added)).
		Int("updated", len(report.Updated)).
		Int("conflicts", len(report.Conflicts)).
		Msg("sync merged")
	return res, nil
}

// Pull merges the remote copy into the local database without pushing.
func (s *Syncer) Pull(ctx context.Context, opts SyncOptions) (Result, error) {
	load, err := s.remote.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pull: %w", err)
	}
	if load.Blocked {
		return Result{}, s.blocked("load")
	}
	if !load.OK {
		if load.Error == remote.ErrorNotFound {
			return Result{}, ErrRemoteNotFound
		}
		return Result{}, fmt.Errorf("pull: %s", load.Error)
	}

	merged, report, warnings, err := s.mergeRemote(ctx, load.DB, opts)
	if err != nil {
		return Result{}, fmt.Errorf("pull: %w", err)
	}
	if load.Meta != nil {
		merged.Meta.RemoteRev = load.Meta.Rev
		merged.Meta.RemoteSyncedAt = schema.FormatTime(s.clock())
	}
	saved, err := s.store.SafeSave(ctx, merged, store.SaveOptions{ForceSnapshot: true})
	if err != nil {
		return Result{}, fmt.Errorf("pull: %w", err)
	}
	res := Result{Action: ActionPulled, Report: &report, Save: saved, Warnings: append(warnings, saved.Warnings...)}
	if load.Meta != nil {
		res.Rev = load.Meta.Rev
	}
	return res, nil
}

// Push overwrites the remote copy with the local database.
func (s *Syncer) Push(ctx context.Context) (Result, error) {
	st, err := s.remote.Status(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("push: status: %w", err)
	}
	if st.Blocked {
		return Result{}, s.blocked("status")
	}
	return s.push(ctx)
}

func (s *Syncer) push(ctx context.Context) (Result, error) {
	db, err := s.store.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("push: %w", err)
	}
	res, err := s.pushDB(ctx, db)
	if err != nil {
		return Result{}, err
	}
	res.Action = ActionPushed
	s.log.Info().Int64("rev", res.Rev).Msg("local database pushed")
	return res, nil
}

// pushDB sends db to the remote and records the assigned revision locally.
func (s *Syncer) pushDB(ctx context.Context, db *schema.Database) (Result, error) {
	data, err := canonical.Marshal(db)
	if err != nil {
		return Result{}, fmt.Errorf("push: serialize: %w", err)
	}
	meta := map[string]any{"schemaVersion": db.SchemaVersion}
	if db.Meta.DeviceID != "" {
		meta["deviceId"] = db.Meta.DeviceID
	}
	saved, err := s.remote.Save(ctx, json.RawMessage(data), meta)
	if err != nil {
		return Result{}, fmt.Errorf("push: %w", err)
	}
	if saved.Blocked {
		return Result{}, s.blocked("save")
	}
	if !saved.OK {
		return Result{}, fmt.Errorf("push: remote refused save: %s", saved.Error)
	}

	at := schema.FormatTime(s.clock())
	local, err := s.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		db.Meta.RemoteRev = saved.Rev
		db.Meta.RemoteSyncedAt = at
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("push: record remote rev: %w", err)
	}
	return Result{Rev: saved.Rev, Save: local, Warnings: local.Warnings}, nil
}

// mergeRemote brings the remote body to the current schema and merges it
// into the local database.
func (s *Syncer) mergeRemote(ctx context.Context, body json.RawMessage, opts SyncOptions) (*schema.Database, merge.Report, []string, error) {
	local, err := s.store.Get(ctx)
	if err != nil {
		return nil, merge.Report{}, nil, err
	}
	now := s.clock()

	v, err := canonical.Decode(body)
	if err != nil {
		return nil, merge.Report{}, nil, fmt.Errorf("decode remote: %w", err)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, merge.Report{}, nil, fmt.Errorf("decode remote: database is not an object")
	}
	report := &schema.MigrationReport{}
	if from := schema.DetectVersion(raw); from != schema.CurrentVersion {
		raw = schema.Migrate(raw, from, schema.CurrentVersion, report, now)
	}
	incomingDB, warnings := normalize.NormalizeDB(raw, now)
	warnings = append(report.Warnings, warnings...)

	cur, err := canonical.ToValue(local)
	if err != nil {
		return nil, merge.Report{}, nil, err
	}
	inc, err := canonical.ToValue(incomingDB)
	if err != nil {
		return nil, merge.Report{}, nil, err
	}
	out, mr := merge.Merge(cur.(map[string]any), inc.(map[string]any),
		merge.WithPrefer(opts.Prefer),
		merge.WithSumStockQty(opts.SumStockQty),
		merge.WithPhoneRegion(opts.PhoneRegion))

	merged, more := normalize.NormalizeDB(out, now)
	warnings = append(warnings, mr.Warnings...)
	warnings = append(warnings, more...)
	return merged, mr, warnings, nil
}

func (s *Syncer) blocked(stage string) error {
	s.log.Warn().Str("stage", stage).Msg("remote account blocked; nothing written")
	return ErrAccountBlocked
}
