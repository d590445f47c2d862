package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// MovementInput describes a stock movement. QtyDelta, when non-zero, is
// used as given; otherwise Qty is taken as a magnitude. The sign is then
// forced by Type.
type MovementInput struct {
	Type       schema.MovementType `validate:"movement_type"`
	ProductCod string
	QtyDelta   int64 `validate:"required_without=Qty"`
	Qty        int64
	Reason     string
	Meta       map[string]any
}

// MovementFilter selects movements for ListMovements. Limit <= 0 means all.
type MovementFilter struct {
	ProductCod string
	Limit      int
}

// AddMovement applies a stock movement to its product. The resulting
// quantity is clamped at zero.
func (l *Ledger) AddMovement(ctx context.Context, actor Actor, in MovementInput) (schema.StockMovement, error) {
	if err := checkInput(ErrInvalidMovement, in.ProductCod, in); err != nil {
		return schema.StockMovement{}, err
	}
	delta := in.QtyDelta
	if delta == 0 {
		delta = in.Qty
	}

	now, _ := l.stamp()
	var mv schema.StockMovement
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		var err error
		mv, err = l.applyMovement(db, now, actor, in.Type, in.ProductCod, delta, in.Reason, in.Meta)
		return err
	})
	if err != nil {
		return schema.StockMovement{}, fmt.Errorf("add movement: %w", err)
	}

	l.audit(ctx, actor, "stock.movement", "product", mv.ProductCod, map[string]any{
		"movementId": mv.ID,
		"type":       string(mv.Type),
		"qtyDelta":   mv.QtyDelta,
	})
	return mv, nil
}

// ListMovements returns the most recent movements matching filter, in
// chronological order.
func (l *Ledger) ListMovements(ctx context.Context, filter MovementFilter) ([]schema.StockMovement, error) {
	db, err := l.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	cod := strings.TrimSpace(filter.ProductCod)
	out := make([]schema.StockMovement, 0, len(db.StockMovements))
	for _, mv := range db.StockMovements {
		if cod == "" || mv.ProductCod == cod {
			out = append(out, mv)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// applyMovement appends a movement to db and updates the product quantity.
// delta is re-signed by typ; the quantity never drops below zero.
func (l *Ledger) applyMovement(db *schema.Database, now time.Time, actor Actor, typ schema.MovementType,
	cod string, delta int64, reason string, meta map[string]any) (schema.StockMovement, error) {
	cod = strings.TrimSpace(cod)
	i := db.FindProduct(cod)
	if i < 0 {
		return schema.StockMovement{}, newError(ErrProductNotFound, cod, "no product with code %s", cod)
	}
	p := &db.Estoque[i]
	delta = typ.SignedDelta(delta)

	before := p.Qtd
	p.Qtd = max(0, before+delta)
	p.UpdatedAt = schema.FormatTime(now)

	m := make(map[string]any, len(meta)+3)
	for k, v := range meta {
		m[k] = v
	}
	m["qtyBefore"] = before
	m["qtyAfter"] = p.Qtd
	if before+delta < 0 {
		m["clamped"] = true
	}

	mv := schema.StockMovement{
		ID:         l.ids.NewID(),
		AtISO:      schema.FormatTime(now),
		Type:       typ,
		ProductCod: cod,
		QtyDelta:   delta,
		Reason:     reason,
		Actor:      actor.String(),
		Meta:       m,
	}
	db.StockMovements = append(db.StockMovements, mv)
	return mv, nil
}
