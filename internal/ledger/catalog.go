package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

// ProductInput creates or edits a product. InitialQty applies to new
// products only and is posted as an entrada movement.
type ProductInput struct {
	Cod        string `validate:"required"`
	Nome       string
	Min        int64 `validate:"gte=0"`
	CustoC     int64 `validate:"gte=0"`
	PrecoC     int64 `validate:"gte=0"`
	Barcode    string
	Categoria  string
	InitialQty int64 `validate:"gte=0"`
}

// SaleInput is a checkout. Lines with PrecoC zero use the product price.
type SaleInput struct {
	Itens     []schema.SaleItem `validate:"min=1,dive"`
	DescontoC int64             `validate:"gte=0"`
	Pagamento string
}

// UpsertProduct creates a product or edits its descriptive fields. The
// quantity of an existing product is never changed here.
func (l *Ledger) UpsertProduct(ctx context.Context, actor Actor, in ProductInput) (schema.Product, error) {
	in.Cod = strings.TrimSpace(in.Cod)
	if err := checkInput(ErrInvalidProduct, in.Cod, in); err != nil {
		return schema.Product{}, err
	}
	cod := in.Cod

	now, at := l.stamp()
	var product schema.Product
	created := false
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		i := db.FindProduct(cod)
		if i < 0 {
			created = true
			db.Estoque = append(db.Estoque, schema.Product{Cod: cod})
			i = len(db.Estoque) - 1
		}
		p := &db.Estoque[i]
		p.Nome = strings.TrimSpace(in.Nome)
		p.Min = in.Min
		p.CustoC = in.CustoC
		p.PrecoC = in.PrecoC
		p.LucroP = markup(in.CustoC, in.PrecoC)
		p.Barcode = strings.TrimSpace(in.Barcode)
		p.Categoria = strings.TrimSpace(in.Categoria)
		p.UpdatedAt = at

		if created && in.InitialQty > 0 {
			if _, err := l.applyMovement(db, now, actor, schema.MovementEntrada, cod, in.InitialQty,
				"estoque inicial", nil); err != nil {
				return err
			}
		}
		product = db.Estoque[db.FindProduct(cod)]
		return nil
	})
	if err != nil {
		return schema.Product{}, fmt.Errorf("upsert product: %w", err)
	}

	action := "product.update"
	if created {
		action = "product.create"
	}
	l.audit(ctx, actor, action, "product", cod, map[string]any{"preco_c": product.PrecoC})
	return product, nil
}

// RecordSale checks out a sale: stock is validated and decremented with one
// saida per line, and the total is posted to the open cash session when
// there is one.
func (l *Ledger) RecordSale(ctx context.Context, actor Actor, in SaleInput) (schema.Sale, error) {
	if err := checkInput(ErrInvalidSale, "", in); err != nil {
		return schema.Sale{}, err
	}

	now, at := l.stamp()
	sale := schema.Sale{
		ID:        l.ids.NewID(),
		DataISO:   at,
		DescontoC: in.DescontoC,
		Status:    schema.SaleActive,
		Pagamento: strings.TrimSpace(in.Pagamento),
	}
	_, err := l.store.Update(ctx, store.SaveOptions{}, func(db *schema.Database) error {
		need := make(map[string]int64, len(in.Itens))
		sale.Itens = make([]schema.SaleItem, 0, len(in.Itens))
		for _, item := range in.Itens {
			cod := strings.TrimSpace(item.Cod)
			i := db.FindProduct(cod)
			if i < 0 {
				return newError(ErrProductNotFound, cod, "no product with code %s", cod)
			}
			p := db.Estoque[i]
			need[cod] += item.Qtd
			if need[cod] > p.Qtd {
				return newError(ErrInsufficientStock, cod, "requested %d, available %d", need[cod], p.Qtd)
			}
			line := schema.SaleItem{Cod: cod, Nome: p.Nome, Qtd: item.Qtd, PrecoC: item.PrecoC}
			if line.PrecoC == 0 {
				line.PrecoC = p.PrecoC
			}
			sale.Itens = append(sale.Itens, line)
			sale.SubtotalC += line.Qtd * line.PrecoC
		}
		sale.TotalC = max(0, sale.SubtotalC-sale.DescontoC)

		for _, line := range sale.Itens {
			if _, err := l.applyMovement(db, now, actor, schema.MovementSaida, line.Cod, line.Qtd,
				"venda "+sale.ID, map[string]any{"saleId": sale.ID}); err != nil {
				return err
			}
		}
		if s := db.OpenSession(); s != nil {
			sale.CashSessionID = s.ID
			if sale.TotalC > 0 {
				l.appendCash(s, now, schema.CashVenda, sale.TotalC, map[string]any{"saleId": sale.ID})
			}
		}
		db.Vendas = append(db.Vendas, sale)
		return nil
	})
	if err != nil {
		return schema.Sale{}, fmt.Errorf("record sale: %w", err)
	}
	l.audit(ctx, actor, "sale.create", "sale", sale.ID, map[string]any{"total_c": sale.TotalC})
	return sale, nil
}

// markup returns the profit over cost in percent, rounded to two places.
func markup(custoC, precoC int64) float64 {
	if custoC <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(precoC - custoC).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(custoC)).
		Round(2)
	f, _ := pct.Float64()
	return f
}
