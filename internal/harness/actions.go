package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/erpstore/internal/ledger"
	"github.com/roach88/erpstore/internal/normalize"
	"github.com/roach88/erpstore/internal/schema"
)

type actionFunc func(ctx context.Context, h *Harness, args map[string]any) (any, error)

var actions = map[string]actionFunc{
	"product.upsert": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.UpsertProduct(ctx, h.actor, ledger.ProductInput{
			Cod:        argString(args, "cod"),
			Nome:       argString(args, "nome"),
			Min:        argInt(args, "min"),
			CustoC:     argInt(args, "custo_c"),
			PrecoC:     argInt(args, "preco_c"),
			Barcode:    argString(args, "barcode"),
			Categoria:  argString(args, "categoria"),
			InitialQty: argInt(args, "initial_qty"),
		})
	},
	"stock.movement": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.AddMovement(ctx, h.actor, ledger.MovementInput{
			Type:       schema.MovementType(argString(args, "type")),
			ProductCod: argString(args, "cod"),
			QtyDelta:   argInt(args, "qty_delta"),
			Qty:        argInt(args, "qty"),
			Reason:     argString(args, "reason"),
		})
	},
	"cash.open": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.OpenSession(ctx, h.actor, argInt(args, "initial_c"))
	},
	"cash.sale": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.AddSale(ctx, h.actor, argInt(args, "amount_c"), nil)
	},
	"cash.void": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.AddVoid(ctx, h.actor, argInt(args, "amount_c"), nil)
	},
	"cash.withdraw": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.Withdraw(ctx, h.actor, argInt(args, "amount_c"), argString(args, "reason"))
	},
	"cash.reinforce": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.Reinforce(ctx, h.actor, argInt(args, "amount_c"), argString(args, "reason"))
	},
	"cash.close": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.CloseSession(ctx, h.actor, argInt(args, "counted_c"))
	},
	"sale.record": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		items, err := argItems(args, "itens")
		if err != nil {
			return nil, err
		}
		return h.ledger.RecordSale(ctx, h.actor, ledger.SaleInput{
			Itens:     items,
			DescontoC: argInt(args, "desconto_c"),
			Pagamento: argString(args, "pagamento"),
		})
	},
	"sale.cancel": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		return h.ledger.CancelSale(ctx, h.actor, argString(args, "sale_id"), argString(args, "reason"), argBool(args, "restock"))
	},
	"inventory.start": func(ctx context.Context, h *Harness, args map[string]any) (any, error) {
		id, err := h.inventory.Start(ctx, argStrings(args, "codes"))
		return map[string]any{"id": id}, err
	},
	"inventory.count": func(_ context.Context, h *Harness, args map[string]any) (any, error) {
		return nil, h.inventory.SetCount(argString(args, "cod"), argInt(args, "counted"))
	},
	"inventory.diffs": func(_ context.Context, h *Harness, _ map[string]any) (any, error) {
		diffs, err := h.inventory.ComputeDiffs()
		return map[string]any{"diffs": diffs, "count": len(diffs)}, err
	},
	"inventory.apply": func(ctx context.Context, h *Harness, _ map[string]any) (any, error) {
		posted, err := h.inventory.ApplyAdjustments(ctx, h.actor)
		return map[string]any{"movements": posted, "count": len(posted)}, err
	},
	"inventory.cancel": func(_ context.Context, h *Harness, _ map[string]any) (any, error) {
		h.inventory.Cancel()
		return nil, nil
	},
}

func knownAction(name string) bool {
	_, ok := actions[name]
	return ok
}

// ActionNames lists the supported actions, sorted.
func ActionNames() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func argInt(args map[string]any, key string) int64 {
	n, _ := normalize.ToInt(args[key])
	return n
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argStrings(args map[string]any, key string) []string {
	list, _ := args[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func argItems(args map[string]any, key string) ([]schema.SaleItem, error) {
	list, _ := args[key].([]any)
	out := make([]schema.SaleItem, 0, len(list))
	for i, v := range list {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected an object, got %T", key, i, v)
		}
		out = append(out, schema.SaleItem{
			Cod:    argString(obj, "cod"),
			Qtd:    argInt(obj, "qtd"),
			PrecoC: argInt(obj, "preco_c"),
		})
	}
	return out, nil
}
