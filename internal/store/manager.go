package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/normalize"
	"github.com/roach88/erpstore/internal/schema"
)

// Recovery reasons.
const (
	ReasonCorruptedJSON = "corrupted_json"
	ReasonStorageError  = "storage_error"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultKey          = "erp_db"
	DefaultMaxSnapshots = 20
	DefaultMaxBackups   = 5
	DefaultCooldown     = time.Minute
)

// Options configures a Manager.
type Options struct {
	Key          string
	MaxSnapshots int
	MaxBackups   int
	// Cooldown is the minimum time between automatic snapshots. Zero
	// means every save snapshots.
	Cooldown time.Duration
	Clock    ids.Clock
	IDs      ids.Generator
	Logger   *logger.Logger
}

// Recovery describes why the Manager reset the stored database.
type Recovery struct {
	Active  bool   `json:"active"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
	Since   string `json:"since,omitempty"`
}

// SaveOptions controls SafeSave.
type SaveOptions struct {
	ForceSnapshot bool
	SkipNormalize bool
}

// SaveResult reports the outcome of a write. DB is the value as persisted.
type SaveResult struct {
	OK              bool             `json:"ok"`
	Warnings        []string         `json:"warnings,omitempty"`
	SnapshotCreated bool             `json:"snapshotCreated"`
	DB              *schema.Database `json:"-"`
}

// InitResult reports what Init found and did.
type InitResult struct {
	DB         *schema.Database         `json:"-"`
	FirstRun   bool                     `json:"firstRun"`
	Repaired   bool                     `json:"repaired"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Migrations []schema.MigrationRecord `json:"migrations,omitempty"`
}

// Manager is the Persistence Manager for one storage key.
type Manager struct {
	mu           sync.Mutex
	kv           kv.Store
	opts         Options
	recovery     Recovery
	lastSnapshot time.Time
	log          *logger.Logger
}

// New creates a Manager over store.
func New(store kv.Store, opts Options) *Manager {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxSnapshots <= 0 {
		opts.MaxSnapshots = DefaultMaxSnapshots
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Clock == nil {
		opts.Clock = ids.SystemClock
	}
	if opts.IDs == nil {
		opts.IDs = ids.UUIDv7Generator{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		kv:   store,
		opts: opts,
		log:  log.With("store"),
	}
}

// Key returns the canonical storage key.
func (m *Manager) Key() string { return m.opts.Key }

func (m *Manager) tmpKey() string       { return m.opts.Key + "__tmp" }
func (m *Manager) snapshotsKey() string { return m.opts.Key + "__snapshots" }
func (m *Manager) backupsKey() string   { return m.opts.Key + "__backups" }

// Init loads the stored database, repairing or creating it as needed, and
// persists the migrated and normalized result.
func (m *Manager) Init(ctx context.Context) (InitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	lr, err := m.load(ctx, now)
	if err != nil {
		m.enterRecovery(ReasonStorageError, err.Error(), now)
		return InitResult{DB: schema.DefaultDB(now)}, fmt.Errorf("init: %w", err)
	}
	m.seedLastSnapshot(ctx)

	switch {
	case lr.corrupted != nil:
		db, err := m.repair(ctx, lr.corrupted, now)
		res := InitResult{
			DB:       db,
			Repaired: true,
			Warnings: []string{fmt.Sprintf("stored database was unreadable and has been reset: %v", lr.corrupted)},
		}
		if err != nil {
			return res, fmt.Errorf("init: %w", err)
		}
		return res, nil

	case lr.missing:
		saved, err := m.save(ctx, schema.DefaultDB(now), SaveOptions{SkipNormalize: true}, now)
		res := InitResult{DB: saved.DB, FirstRun: true, Warnings: saved.Warnings}
		if err != nil {
			return res, fmt.Errorf("init: %w", err)
		}
		m.log.Info().Str("key", m.opts.Key).Msg("created new database")
		return res, nil
	}

	saved, err := m.save(ctx, lr.db, SaveOptions{SkipNormalize: true}, now)
	res := InitResult{
		DB:         saved.DB,
		Warnings:   append(lr.warnings, saved.Warnings...),
		Migrations: lr.migrations,
	}
	if err != nil {
		return res, fmt.Errorf("init: %w", err)
	}
	if len(lr.migrations) > 0 || len(lr.warnings) > 0 {
		m.log.Info().
			Int("migrations", len(lr.migrations)).
			Int("warnings", len(lr.warnings)).
			Msg("database upgraded")
	}
	return res, nil
}

// Get reads, migrates and normalizes the stored database. A missing value
// yields a default database. An unparsable value triggers recovery. A read
// failure returns a default database together with the error.
func (m *Manager) Get(ctx context.Context) (*schema.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(ctx, m.opts.Clock())
}

// SafeSave persists db. See SaveOptions. On failure the Manager enters
// recovery with ReasonStorageError and the result has OK=false.
func (m *Manager) SafeSave(ctx context.Context, db *schema.Database, opts SaveOptions) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(ctx, db, opts, m.opts.Clock())
}

// Update runs fn on the current database and saves the result, holding the
// Manager lock throughout. An error from fn aborts without writing and is
// returned as is.
func (m *Manager) Update(ctx context.Context, opts SaveOptions, fn func(db *schema.Database) error) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock()
	db, err := m.current(ctx, now)
	if err != nil {
		return SaveResult{DB: db}, err
	}
	if err := fn(db); err != nil {
		return SaveResult{DB: db}, err
	}
	return m.save(ctx, db, opts, now)
}

// Recovery returns the current recovery state.
func (m *Manager) Recovery() Recovery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovery
}

// ClearRecovery resets the recovery flag.
func (m *Manager) ClearRecovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery = Recovery{}
}

type loadResult struct {
	db         *schema.Database
	warnings   []string
	migrations []schema.MigrationRecord
	missing    bool
	corrupted  error
}

// load reads the canonical key. Only storage failures are returned as
// errors; parse failures are reported through corrupted.
func (m *Manager) load(ctx context.Context, now time.Time) (loadResult, error) {
	text, ok, err := m.kv.Get(ctx, m.opts.Key)
	if err != nil {
		return loadResult{}, fmt.Errorf("read %s: %w", m.opts.Key, err)
	}
	if !ok {
		return loadResult{missing: true}, nil
	}

	v, err := canonical.Decode([]byte(text))
	if err != nil {
		return loadResult{corrupted: err}, nil
	}

	report := &schema.MigrationReport{}
	if raw, ok := v.(map[string]any); ok {
		if from := schema.DetectVersion(raw); from != schema.CurrentVersion {
			v = schema.Migrate(raw, from, schema.CurrentVersion, report, now)
		}
	}
	db, warnings := normalize.NormalizeDB(v, now)
	return loadResult{
		db:         db,
		warnings:   append(report.Warnings, warnings...),
		migrations: report.Migrations,
	}, nil
}

// current is Get without locking.
func (m *Manager) current(ctx context.Context, now time.Time) (*schema.Database, error) {
	lr, err := m.load(ctx, now)
	if err != nil {
		m.enterRecovery(ReasonStorageError, err.Error(), now)
		return schema.DefaultDB(now), err
	}
	switch {
	case lr.corrupted != nil:
		return m.repair(ctx, lr.corrupted, now)
	case lr.missing:
		return schema.DefaultDB(now), nil
	}
	for _, w := range lr.warnings {
		m.log.Debug().Str("warning", w).Msg("normalized on read")
	}
	return lr.db, nil
}

// repair replaces an unreadable stored value with a default database and
// snapshots it.
func (m *Manager) repair(ctx context.Context, cause error, now time.Time) (*schema.Database, error) {
	m.enterRecovery(ReasonCorruptedJSON, cause.Error(), now)
	saved, err := m.save(ctx, schema.DefaultDB(now), SaveOptions{ForceSnapshot: true, SkipNormalize: true}, now)
	return saved.DB, err
}

func (m *Manager) save(ctx context.Context, db *schema.Database, opts SaveOptions, now time.Time) (SaveResult, error) {
	var warnings []string
	if db == nil || !opts.SkipNormalize {
		db, warnings = normalize.NormalizeDB(db, now)
	}
	db.Meta.UpdatedAt = schema.FormatTime(now)

	fail := func(err error) (SaveResult, error) {
		m.enterRecovery(ReasonStorageError, err.Error(), now)
		return SaveResult{OK: false, Warnings: append(warnings, err.Error()), DB: db},
			fmt.Errorf("safe save: %w", err)
	}

	data, err := canonical.Marshal(db)
	if err != nil {
		return fail(fmt.Errorf("serialize: %w", err))
	}
	if err := m.kv.Set(ctx, m.tmpKey(), string(data)); err != nil {
		return fail(err)
	}
	if err := m.kv.Set(ctx, m.opts.Key, string(data)); err != nil {
		return fail(err)
	}
	if err := m.kv.Delete(ctx, m.tmpKey()); err != nil {
		return fail(err)
	}

	res := SaveResult{OK: true, Warnings: warnings, DB: db}
	if opts.ForceSnapshot || m.snapshotDue(now) {
		if _, err := m.createSnapshot(ctx, db, now); err != nil {
			return fail(err)
		}
		res.SnapshotCreated = true
	}
	return res, nil
}

// seedLastSnapshot starts the cooldown from the newest stored snapshot so
// that a new process does not snapshot on its first save.
func (m *Manager) seedLastSnapshot(ctx context.Context) {
	if !m.lastSnapshot.IsZero() {
		return
	}
	list, err := m.readList(ctx, m.snapshotsKey())
	if err != nil || len(list) == 0 {
		return
	}
	if at, err := time.Parse(time.RFC3339Nano, str(list[0], "at")); err == nil {
		m.lastSnapshot = at
	}
}

func (m *Manager) snapshotDue(now time.Time) bool {
	return m.lastSnapshot.IsZero() || now.Sub(m.lastSnapshot) >= m.opts.Cooldown
}

func (m *Manager) enterRecovery(reason, details string, now time.Time) {
	m.log.Warn().Str("reason", reason).Str("details", details).Msg("entering recovery mode")
	m.recovery = Recovery{
		Active:  true,
		Reason:  reason,
		Details: details,
		Since:   schema.FormatTime(now),
	}
}

// Sentinel errors.
var (
	ErrSnapshotNotFound       = errors.New("snapshot not found")
	ErrBackupNotFound         = errors.New("backup not found")
	ErrInvalidBackup          = errors.New("invalid backup")
	ErrMergeImportUnsupported = errors.New("merge import is not supported; reconcile through the merge engine")
)
