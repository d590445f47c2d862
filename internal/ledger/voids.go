package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// CancelSale voids a sale. With restock, every line is returned to stock
// as a devolucao movement. The refund is posted as an estorno to the open
// cash session, if any.
func (l *Ledger) CancelSale(ctx context.Context, actor Actor, saleID, reason string, restock bool) (schema.SaleVoid, error) {
	saleID = strings.TrimSpace(saleID)
	now, at := l.stamp()
	var void schema.SaleVoid
	var skipped []string

	_, err := l.store.Update(ctx, store.SaveOptions{ForceSnapshot: true}, func(db *schema.Database) error {
		i := db.FindSale(saleID)
		if i < 0 {
			return newError(ErrSaleNotFound, saleID, "no sale with id %s", saleID)
		}
		for _, v := range db.SaleVoids {
			if v.SaleID == saleID {
				return newError(ErrSaleAlreadyVoided, saleID, "sale was voided at %s", v.AtISO)
			}
		}
		sale := &db.Vendas[i]
		if sale.Status == schema.SaleCancelled {
			return newError(ErrSaleAlreadyVoided, saleID, "sale is already cancelled")
		}

		void = schema.SaleVoid{
			ID:          l.ids.NewID(),
			SaleID:      saleID,
			AtISO:       at,
			Reason:      reason,
			Restock:     restock,
			MovementIDs: []string{},
			RefundC:     sale.TotalC,
			Actor:       actor.String(),
		}

		if restock {
			for _, item := range sale.Itens {
				if item.Qtd <= 0 {
					continue
				}
				if db.FindProduct(item.Cod) < 0 {
					skipped = append(skipped, item.Cod)
					continue
				}
				mv, err := l.applyMovement(db, now, actor, schema.MovementDevolucao, item.Cod, item.Qtd,
					"cancelamento da venda "+saleID, map[string]any{"saleId": saleID, "voidId": void.ID})
				if err != nil {
					return err
				}
				void.MovementIDs = append(void.MovementIDs, mv.ID)
			}
		}
		db.SaleVoids = append(db.SaleVoids, void)

		sale.Status = schema.SaleCancelled
		sale.CanceladaEm = at
		sale.MotivoCancelamento = reason
		sale.CanceladaPor = actor.String()

		if s := db.OpenSession(); s != nil && sale.TotalC > 0 {
			l.appendCash(s, now, schema.CashEstorno, sale.TotalC, map[string]any{"saleId": saleID, "voidId": void.ID})
		}
		return nil
	})
	if err != nil {
		return schema.SaleVoid{}, fmt.Errorf("cancel sale: %w", err)
	}
	for _, cod := range skipped {
		l.log.Warn().Str("sale", saleID).Str("cod", cod).Msg("restock skipped: product no longer exists")
	}

	l.audit(ctx, actor, "sale.cancel", "sale", saleID, map[string]any{
		"voidId":   void.ID,
		"reason":   reason,
		"restock":  restock,
		"refund_c": void.RefundC,
	})
	return void, nil
}
