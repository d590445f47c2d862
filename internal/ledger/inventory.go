package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// InventoryDiff is a counted product whose count differs from the system
// quantity.
type InventoryDiff struct {
	Cod       string `json:"cod"`
	Nome      string `json:"nome"`
	SystemQty int64  `json:"systemQty"`
	Counted   int64  `json:"counted"`
	Delta     int64  `json:"delta"`
}

type inventoryItem struct {
	cod     string
	nome    string
	system  int64
	counted *int64
}

// Inventory is a physical stock count in progress. It lives in memory until
// ApplyAdjustments posts the differences as ajuste movements.
type Inventory struct {
	l *Ledger

	mu        sync.Mutex
	id        string
	startedAt time.Time
	items     map[string]*inventoryItem
	order     []string
}

// NewInventory returns an idle inventory bound to l.
func (l *Ledger) NewInventory() *Inventory {
	return &Inventory{l: l}
}

// Start begins a count over codes, or over every product when codes is
// empty. System quantities are captured now. A running count is replaced.
func (inv *Inventory) Start(ctx context.Context, codes []string) (string, error) {
	db, err := inv.l.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("start inventory: %w", err)
	}

	items := make(map[string]*inventoryItem)
	var order []string
	add := func(p schema.Product) {
		if _, ok := items[p.Cod]; ok {
			return
		}
		items[p.Cod] = &inventoryItem{cod: p.Cod, nome: p.Nome, system: p.Qtd}
		order = append(order, p.Cod)
	}
	if len(codes) == 0 {
		for _, p := range db.Estoque {
			add(p)
		}
	}
	for _, cod := range codes {
		cod = strings.TrimSpace(cod)
		i := db.FindProduct(cod)
		if i < 0 {
			return "", newError(ErrProductNotFound, cod, "no product with code %s", cod)
		}
		add(db.Estoque[i])
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.id = inv.l.ids.NewID()
	inv.startedAt = inv.l.clock()
	inv.items = items
	inv.order = order
	inv.l.log.Info().Str("inventory", inv.id).Int("products", len(order)).Msg("inventory started")
	return inv.id, nil
}

// Active reports whether a count is running.
func (inv *Inventory) Active() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.id != ""
}

// ID returns the running count's id, or "".
func (inv *Inventory) ID() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.id
}

// SetCount records the counted quantity for cod. Counting again overwrites.
func (inv *Inventory) SetCount(cod string, counted int64) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.id == "" {
		return newError(ErrInventoryNotStarted, "", "start an inventory first")
	}
	cod = strings.TrimSpace(cod)
	item, ok := inv.items[cod]
	if !ok {
		return newError(ErrCodeNotInInventory, cod, "code %s is not part of inventory %s", cod, inv.id)
	}
	if err := checkValue(ErrInvalidAmount, cod, counted, "gte=0", "counted quantity"); err != nil {
		return err
	}
	item.counted = &counted
	return nil
}

// ComputeDiffs lists counted products whose count differs from the system
// quantity, in the order they were added to the count.
func (inv *Inventory) ComputeDiffs() ([]InventoryDiff, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.id == "" {
		return nil, newError(ErrInventoryNotStarted, "", "start an inventory first")
	}
	return inv.diffsLocked(), nil
}

func (inv *Inventory) diffsLocked() []InventoryDiff {
	out := []InventoryDiff{}
	for _, cod := range inv.order {
		item := inv.items[cod]
		if item.counted == nil || *item.counted == item.system {
			continue
		}
		out = append(out, InventoryDiff{
			Cod:       cod,
			Nome:      item.nome,
			SystemQty: item.system,
			Counted:   *item.counted,
			Delta:     *item.counted - item.system,
		})
	}
	return out
}

// ApplyAdjustments posts one ajuste movement per difference and ends the
// count. With no differences nothing is written and the count still ends.
func (inv *Inventory) ApplyAdjustments(ctx context.Context, actor Actor) ([]schema.StockMovement, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.id == "" {
		return nil, newError(ErrInventoryNotStarted, "", "start an inventory first")
	}
	diffs := inv.diffsLocked()
	id := inv.id
	l := inv.l
	if len(diffs) == 0 {
		inv.resetLocked()
		return []schema.StockMovement{}, nil
	}

	now, _ := l.stamp()
	var posted []schema.StockMovement
	_, err := l.store.Update(ctx, store.SaveOptions{ForceSnapshot: true}, func(db *schema.Database) error {
		posted = posted[:0]
		for _, d := range diffs {
			mv, err := l.applyMovement(db, now, actor, schema.MovementAjuste, d.Cod, d.Delta,
				"inventario "+id, map[string]any{
					"inventoryId": id,
					"systemQty":   d.SystemQty,
					"countedQty":  d.Counted,
				})
			if err != nil {
				return err
			}
			posted = append(posted, mv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply inventory: %w", err)
	}
	inv.resetLocked()

	l.audit(ctx, actor, "inventory.apply", "inventory", id, map[string]any{"adjustments": len(posted)})
	return posted, nil
}

// Cancel discards the running count, if any.
func (inv *Inventory) Cancel() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.resetLocked()
}

func (inv *Inventory) resetLocked() {
	inv.id = ""
	inv.startedAt = time.Time{}
	inv.items = nil
	inv.order = nil
}
