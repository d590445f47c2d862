package normalize

import (
	"strings"

	"github.com/roach88/erpstore/internal/schema"
)

func (n *normalizer) movements(items []any) []schema.StockMovement {
	out := make([]schema.StockMovement, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("stockMovements[%d] is not an object; dropped", i)
			continue
		}
		typ := schema.MovementType(str(obj, "type"))
		if !typ.Valid() {
			n.warnf("stockMovements[%d] has unknown type %q; dropped", i, typ)
			continue
		}
		cod := strings.TrimSpace(str(obj, "productCod"))
		if cod == "" {
			n.warnf("stockMovements[%d] has no product code; dropped", i)
			continue
		}
		m := schema.StockMovement{
			ID:         n.id(obj, "movement"),
			AtISO:      str(obj, "atIso"),
			Type:       typ,
			ProductCod: cod,
			Reason:     str(obj, "reason"),
			Actor:      str(obj, "actor"),
			Meta:       objectOrNil(obj["meta"]),
		}
		delta, _ := n.intField(obj["qtyDelta"], "movement "+m.ID+" qtyDelta")
		m.QtyDelta = typ.SignedDelta(delta)
		if m.QtyDelta != delta {
			n.warnf("movement %s sign corrected for type %s", m.ID, typ)
		}
		out = append(out, m)
	}
	return out
}

// sessions reads the cash sessions, first occurrence of an id wins. The
// expected amount of an open session always equals initial_c plus its
// movements; closed sessions keep what they were closed with.
func (n *normalizer) sessions(items []any) []schema.CashSession {
	out := make([]schema.CashSession, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("cashSessions[%d] is not an object; dropped", i)
			continue
		}
		s := schema.CashSession{
			ID:          n.id(obj, "session"),
			OpenedAtISO: str(obj, "openedAtIso"),
			OpenedBy:    str(obj, "openedBy"),
			ClosedBy:    str(obj, "closedBy"),
		}
		if seen[s.ID] {
			n.warnf("duplicate cash session %s; later entry dropped", s.ID)
			continue
		}
		seen[s.ID] = true
		s.InitialC, _ = n.intField(obj["initial_c"], "session "+s.ID+" initial_c")
		s.Movements = n.cashMovements(obj["movements"], s.ID)

		running := s.InitialC
		for _, m := range s.Movements {
			running += m.AmountC
		}
		closed, _ := obj["closedAtIso"].(string)
		exp, ok := n.intField(obj["expected_c"], "session "+s.ID+" expected_c")
		switch {
		case !ok:
			s.ExpectedC = running
			n.warnf("session %s expected amount recomputed as %d", s.ID, running)
		case closed == "" && exp != running:
			s.ExpectedC = running
			n.warnf("open session %s expected amount %d does not match its movements; set to %d", s.ID, exp, running)
		default:
			s.ExpectedC = exp
		}

		if closed != "" {
			s.ClosedAtISO = &closed
			n.closedTotals(obj, &s)
		} else if obj["counted_c"] != nil || obj["diff_c"] != nil {
			n.warnf("open session %s had closing totals; cleared", s.ID)
		}
		out = append(out, s)
	}
	return out
}

// closedTotals fills counted_c and diff_c of a closed session.
func (n *normalizer) closedTotals(obj map[string]any, s *schema.CashSession) {
	counted, ok := n.intField(obj["counted_c"], "session "+s.ID+" counted_c")
	if !ok {
		counted = s.ExpectedC
		n.warnf("closed session %s had no counted amount; set to expected %d", s.ID, counted)
	}
	s.CountedC = &counted

	diff, ok := n.intField(obj["diff_c"], "session "+s.ID+" diff_c")
	if !ok {
		diff = counted - s.ExpectedC
		n.warnf("closed session %s difference computed as %d", s.ID, diff)
	}
	s.DiffC = &diff
}

func (n *normalizer) cashMovements(v any, sessionID string) []schema.CashMovement {
	items, _ := v.([]any)
	out := make([]schema.CashMovement, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("session %s movement %d is not an object; dropped", sessionID, i)
			continue
		}
		typ := schema.CashMovementType(str(obj, "type"))
		if !typ.Valid() {
			n.warnf("session %s movement %d has unknown type %q; dropped", sessionID, i, typ)
			continue
		}
		m := schema.CashMovement{
			ID:    n.id(obj, "cash"),
			AtISO: str(obj, "atIso"),
			Type:  typ,
			Meta:  objectOrNil(obj["meta"]),
		}
		m.AmountC, _ = n.intField(obj["amount_c"], "cash movement "+m.ID+" amount_c")
		out = append(out, m)
	}
	return out
}

// register reconciles caixa with the session list. A pointer to a missing
// or closed session is cleared. Open sessions the pointer does not name are
// adopted when the pointer is empty (the latest one), otherwise closed with
// no difference.
func (n *normalizer) register(obj map[string]any, db *schema.Database) {
	db.Caixa.LastClosedSessionID = str(obj, "lastClosedSessionId")
	ptr := strings.TrimSpace(str(obj, "openSessionId"))
	if ptr != "" {
		i := db.FindCashSession(ptr)
		if i < 0 || !db.CashSessions[i].Open() {
			n.warnf("open session pointer %s is dangling; cleared", ptr)
			ptr = ""
		}
	}

	if ptr == "" {
		for i := len(db.CashSessions) - 1; i >= 0; i-- {
			if db.CashSessions[i].Open() {
				ptr = db.CashSessions[i].ID
				n.warnf("open session %s adopted by the register", ptr)
				break
			}
		}
	}

	for i := range db.CashSessions {
		s := &db.CashSessions[i]
		if !s.Open() || s.ID == ptr {
			continue
		}
		closedAt := s.OpenedAtISO
		counted := s.ExpectedC
		var diff int64
		s.ClosedAtISO = &closedAt
		s.CountedC = &counted
		s.DiffC = &diff
		n.warnf("stray open session %s closed", s.ID)
	}
	db.Caixa.OpenSessionID = ptr
}

func (n *normalizer) voids(items []any) []schema.SaleVoid {
	out := make([]schema.SaleVoid, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("saleVoids[%d] is not an object; dropped", i)
			continue
		}
		saleID := strings.TrimSpace(str(obj, "saleId"))
		if saleID == "" {
			n.warnf("saleVoids[%d] has no sale id; dropped", i)
			continue
		}
		if seen[saleID] {
			n.warnf("duplicate void for sale %s; later entry dropped", saleID)
			continue
		}
		seen[saleID] = true

		v := schema.SaleVoid{
			ID:          n.id(obj, "void"),
			SaleID:      saleID,
			AtISO:       str(obj, "atIso"),
			Reason:      str(obj, "reason"),
			Restock:     toBool(obj["restock"]),
			MovementIDs: []string{},
			Actor:       str(obj, "actor"),
		}
		v.RefundC, _ = n.intField(obj["refund_c"], "void "+v.ID+" refund_c")
		ids, _ := obj["movementIds"].([]any)
		for _, id := range ids {
			if s, ok := toString(id); ok && s != "" {
				v.MovementIDs = append(v.MovementIDs, s)
			}
		}
		out = append(out, v)
	}
	return out
}
