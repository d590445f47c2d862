package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// OpenSession opens the register with initialC in the drawer.
func (l *Ledger) OpenSession(ctx context.Context, actor Actor, initialC int64) (schema.CashSession, error) {
	if err := checkValue(ErrInvalidAmount, "", initialC, "gte=0", "initial amount"); err != nil {
		return schema.CashSession{}, err
	}
	_, at := l.stamp()
	session := schema.CashSession{
		ID:          l.ids.NewID(),
		OpenedAtISO: at,
		InitialC:    initialC,
		ExpectedC:   initialC,
		Movements:   []schema.CashMovement{},
		OpenedBy:    actor.String(),
	}
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		if open := db.OpenSession(); open != nil {
			return newError(ErrRegisterAlreadyOpen, open.ID, "close the current session first")
		}
		db.CashSessions = append(db.CashSessions, session)
		db.Caixa.OpenSessionID = session.ID
		return nil
	})
	if err != nil {
		return schema.CashSession{}, fmt.Errorf("open session: %w", err)
	}
	l.audit(ctx, actor, "cash.open", "cashSession", session.ID, map[string]any{"initial_c": initialC})
	return session, nil
}

// AddSale records a sale payment into the open session.
func (l *Ledger) AddSale(ctx context.Context, actor Actor, amountC int64, meta map[string]any) (schema.CashMovement, error) {
	return l.addCash(ctx, actor, schema.CashVenda, amountC, meta)
}

// AddVoid records a refund out of the open session.
func (l *Ledger) AddVoid(ctx context.Context, actor Actor, amountC int64, meta map[string]any) (schema.CashMovement, error) {
	return l.addCash(ctx, actor, schema.CashEstorno, amountC, meta)
}

// Withdraw records cash taken out of the drawer (sangria).
func (l *Ledger) Withdraw(ctx context.Context, actor Actor, amountC int64, reason string) (schema.CashMovement, error) {
	return l.addCash(ctx, actor, schema.CashSangria, amountC, reasonMeta(reason))
}

// Reinforce records cash put into the drawer (reforco).
func (l *Ledger) Reinforce(ctx context.Context, actor Actor, amountC int64, reason string) (schema.CashMovement, error) {
	return l.addCash(ctx, actor, schema.CashReforco, amountC, reasonMeta(reason))
}

// CloseSession closes the open session with the counted drawer amount.
func (l *Ledger) CloseSession(ctx context.Context, actor Actor, countedC int64) (schema.CashSession, error) {
	if err := checkValue(ErrInvalidAmount, "", countedC, "gte=0", "counted amount"); err != nil {
		return schema.CashSession{}, err
	}
	_, at := l.stamp()
	var closed schema.CashSession
	_, err := l.store.Update(ctx, store.SaveOptions{ForceSnapshot: true}, func(db *schema.Database) error {
		s := db.OpenSession()
		if s == nil {
			return newError(ErrRegisterNotOpen, "", "no open session to close")
		}
		counted := countedC
		diff := counted - s.ExpectedC
		closedAt := at
		s.ClosedAtISO = &closedAt
		s.CountedC = &counted
		s.DiffC = &diff
		s.ClosedBy = actor.String()
		db.Caixa.OpenSessionID = ""
		db.Caixa.LastClosedSessionID = s.ID
		closed = *s
		return nil
	})
	if err != nil {
		return schema.CashSession{}, fmt.Errorf("close session: %w", err)
	}
	l.audit(ctx, actor, "cash.close", "cashSession", closed.ID, map[string]any{
		"expected_c": closed.ExpectedC,
		"counted_c":  *closed.CountedC,
		"diff_c":     *closed.DiffC,
	})
	return closed, nil
}

// CurrentSession returns the open session, or nil when the register is
// closed.
func (l *Ledger) CurrentSession(ctx context.Context) (*schema.CashSession, error) {
	db, err := l.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("current session: %w", err)
	}
	s := db.OpenSession()
	if s == nil {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (l *Ledger) addCash(ctx context.Context, actor Actor, typ schema.CashMovementType, amountC int64, meta map[string]any) (schema.CashMovement, error) {
	if err := checkValue(ErrInvalidAmount, "", amountC, "gt=0", string(typ)+" amount"); err != nil {
		return schema.CashMovement{}, err
	}
	now, _ := l.stamp()
	var mv schema.CashMovement
	var sessionID string
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		s := db.OpenSession()
		if s == nil {
			return newError(ErrRegisterNotOpen, "", "open the register before recording %s", typ)
		}
		sessionID = s.ID
		mv = l.appendCash(s, now, typ, amountC, meta)
		return nil
	})
	if err != nil {
		return schema.CashMovement{}, fmt.Errorf("cash %s: %w", typ, err)
	}
	l.audit(ctx, actor, "cash."+string(typ), "cashSession", sessionID, map[string]any{
		"movementId": mv.ID,
		"amount_c":   mv.AmountC,
	})
	return mv, nil
}

// appendCash adds a signed movement to s and updates expected_c.
// venda and reforco add to the drawer; estorno and sangria take from it.
func (l *Ledger) appendCash(s *schema.CashSession, now time.Time, typ schema.CashMovementType, amountC int64, meta map[string]any) schema.CashMovement {
	if amountC < 0 {
		amountC = -amountC
	}
	if typ == schema.CashEstorno || typ == schema.CashSangria {
		amountC = -amountC
	}
	mv := schema.CashMovement{
		ID:      l.ids.NewID(),
		AtISO:   schema.FormatTime(now),
		Type:    typ,
		AmountC: amountC,
		Meta:    meta,
	}
	s.Movements = append(s.Movements, mv)
	s.ExpectedC += amountC
	return mv
}

func reasonMeta(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}
