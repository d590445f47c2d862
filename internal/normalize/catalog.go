package normalize

import (
	"strings"

	"github.com/roach88/erpstore/internal/schema"
)

func (n *normalizer) products(items []any) []schema.Product {
	out := make([]schema.Product, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("estoque[%d] is not an object; dropped", i)
			continue
		}
		rawCod, _ := toString(obj["cod"])
		cod := strings.TrimSpace(rawCod)
		if cod == "" {
			n.warnf("estoque[%d] has no code; dropped", i)
			continue
		}
		if cod != rawCod {
			n.warnf("code %q trimmed to %q", rawCod, cod)
		}
		if seen[cod] {
			n.warnf("duplicate code %s in estoque; later entry dropped", cod)
			continue
		}
		seen[cod] = true

		p := schema.Product{
			Cod:       cod,
			Nome:      str(obj, "nome"),
			Qtd:       n.nonNegative(obj, "qtd", "stock", cod),
			Min:       n.nonNegative(obj, "min", "minimum", cod),
			CustoC:    n.nonNegative(obj, "custo_c", "cost", cod),
			PrecoC:    n.nonNegative(obj, "preco_c", "price", cod),
			Barcode:   str(obj, "barcode"),
			Categoria: str(obj, "categoria"),
			UpdatedAt: str(obj, "updatedAt"),
		}
		if f, ok := ToFloat(obj["lucro_p"]); ok {
			p.LucroP = f
		}
		out = append(out, p)
	}
	return out
}

// nonNegative reads an integer field clamped at zero. label names the
// field in warnings, owner the record it belongs to.
func (n *normalizer) nonNegative(obj map[string]any, key, label, owner string) int64 {
	v, present := obj[key]
	if !present || v == nil {
		return 0
	}
	x, ok := n.intField(v, label+" of "+owner)
	if !ok {
		n.warnf("invalid %s for code %s; set to 0", label, owner)
		return 0
	}
	if x < 0 {
		n.warnf("negative %s corrected for code %s", label, owner)
		return 0
	}
	return x
}

func (n *normalizer) sales(items []any) []schema.Sale {
	out := make([]schema.Sale, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("vendas[%d] is not an object; dropped", i)
			continue
		}
		s := schema.Sale{
			ID:                 n.id(obj, "sale"),
			DataISO:            str(obj, "dataIso"),
			Pagamento:          str(obj, "pagamento"),
			CashSessionID:      str(obj, "cashSessionId"),
			CanceladaEm:        str(obj, "canceladaEm"),
			MotivoCancelamento: str(obj, "motivoCancelamento"),
			CanceladaPor:       str(obj, "canceladaPor"),
		}
		s.Itens = n.saleItems(obj["itens"], s.ID)

		var lineSum int64
		for _, it := range s.Itens {
			lineSum += it.Qtd * it.PrecoC
		}
		if sub, ok := n.intField(obj["subtotal_c"], "sale "+s.ID+" subtotal_c"); ok && sub >= 0 {
			s.SubtotalC = sub
		} else {
			s.SubtotalC = lineSum
			if _, present := obj["subtotal_c"]; present {
				n.warnf("invalid subtotal for sale %s; recomputed from items", s.ID)
			}
		}
		if d, ok := n.intField(obj["desconto_c"], "sale "+s.ID+" desconto_c"); ok && d >= 0 {
			s.DescontoC = d
		} else if _, present := obj["desconto_c"]; present {
			n.warnf("invalid discount for sale %s; set to 0", s.ID)
		}
		if t, ok := n.intField(obj["total_c"], "sale "+s.ID+" total_c"); ok && t >= 0 {
			s.TotalC = t
		} else {
			s.TotalC = max(0, s.SubtotalC-s.DescontoC)
			n.warnf("total missing or invalid for sale %s; set to %d", s.ID, s.TotalC)
		}
		s.Status = n.saleStatus(obj["status"], s.ID)
		out = append(out, s)
	}
	return out
}

func (n *normalizer) saleItems(v any, saleID string) []schema.SaleItem {
	items, _ := v.([]any)
	out := make([]schema.SaleItem, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("sale %s item %d is not an object; dropped", saleID, i)
			continue
		}
		cod := strings.TrimSpace(str(obj, "cod"))
		out = append(out, schema.SaleItem{
			Cod:    cod,
			Nome:   str(obj, "nome"),
			Qtd:    n.nonNegative(obj, "qtd", "item quantity", cod),
			PrecoC: n.nonNegative(obj, "preco_c", "item price", cod),
		})
	}
	return out
}

func (n *normalizer) saleStatus(v any, saleID string) string {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case schema.SaleActive:
		if s == schema.SaleActive {
			return s
		}
	case schema.SaleCancelled, "cancelado", "cancelled", "canceled":
		if s != schema.SaleCancelled {
			n.warnf("status %q of sale %s coerced to %s", s, saleID, schema.SaleCancelled)
		}
		return schema.SaleCancelled
	}
	if s != "" {
		n.warnf("status %q of sale %s coerced to %s", s, saleID, schema.SaleActive)
	}
	return schema.SaleActive
}

func (n *normalizer) debtors(items []any) []schema.Debtor {
	out := make([]schema.Debtor, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			n.warnf("devedores[%d] is not an object; dropped", i)
			continue
		}
		d := schema.Debtor{
			ID:        n.id(obj, "debtor"),
			Nome:      str(obj, "nome"),
			Telefone:  str(obj, "telefone"),
			Doc:       str(obj, "doc"),
			UpdatedAt: str(obj, "updatedAt"),
		}
		if saldo, ok := n.intField(obj["saldo_c"], "debtor "+d.ID+" saldo_c"); ok {
			d.SaldoC = saldo
		}
		out = append(out, d)
	}
	return out
}
