package ledger

import (
	"context"
	"time"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/logger"
	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   string
	Name string
}

// System is the actor for unattended operations.
var System = Actor{ID: "system", Name: "Sistema"}

// String returns the identifier stored on records.
func (a Actor) String() string {
	switch {
	case a.ID != "":
		return a.ID
	case a.Name != "":
		return a.Name
	}
	return System.ID
}

// Options configures a Ledger.
type Options struct {
	IDs    ids.Generator
	Clock  ids.Clock
	Logger *logger.Logger
}

// Ledger performs domain operations through a store.Manager.
type Ledger struct {
	store *store.Manager
	ids   ids.Generator
	clock ids.Clock
	log   *logger.Logger
}

// New creates a Ledger over mgr.
func New(mgr *store.Manager, opts Options) *Ledger {
	if opts.IDs == nil {
		opts.IDs = ids.UUIDv7Generator{}
	}
	if opts.Clock == nil {
		opts.Clock = ids.SystemClock
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{store: mgr, ids: opts.IDs, clock: opts.Clock, log: log.With("ledger")}
}

func (l *Ledger) stamp() (time.Time, string) {
	now := l.clock()
	return now, schema.FormatTime(now)
}

// audit appends an audit entry in its own save. Failures are logged only.
func (l *Ledger) audit(ctx context.Context, actor Actor, action, entity, entityID string, details map[string]any) {
	_, at := l.stamp()
	entry := schema.AuditEntry{
		ID:       l.ids.NewID(),
		AtISO:    at,
		Action:   action,
		Actor:    actor.String(),
		Entity:   entity,
		EntityID: entityID,
		Details:  details,
	}
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		db.AuditLog = append(db.AuditLog, entry)
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("audit entry not recorded")
	}
}
