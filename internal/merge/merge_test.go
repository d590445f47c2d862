package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/canonical"
)

func decodeObject(t *testing.T, text string) map[string]any {
	t.Helper()
	v, err := canonical.Decode([]byte(text))
	require.NoError(t, err)
	obj, ok := v.(map[string]any)
	require.True(t, ok)
	return obj
}

func stockQty(t *testing.T, db map[string]any, cod string) any {
	t.Helper()
	for _, item := range db["estoque"].([]any) {
		obj := item.(map[string]any)
		if obj["cod"] == cod {
			return obj["qtd"]
		}
	}
	t.Fatalf("code %s not found", cod)
	return nil
}

func TestMerge_StockSumDefault(t *testing.T) {
	current := decodeObject(t, `{"estoque":[{"cod":"A","qtd":10}]}`)
	incoming := decodeObject(t, `{"estoque":[{"cod":"A","qtd":5}]}`)

	out, report := Merge(current, incoming)

	assert.Equal(t, int64(15), stockQty(t, out, "A"))
	assert.Equal(t, 1, report.Collections["estoque"].Merged)
	assert.Empty(t, report.Conflicts)
}

func TestMerge_StockPreferImportWithoutSum(t *testing.T) {
	current := decodeObject(t, `{"estoque":[{"cod":"A","qtd":10}]}`)
	incoming := decodeObject(t, `{"estoque":[{"cod":"A","qtd":5}]}`)

	out, report := Merge(current, incoming, WithSumStockQty(false), WithPrefer(PreferImport))

	assert.Equal(t, "5", canonicalString(t, stockQty(t, out, "A")))
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "estoque[A].qtd", report.Conflicts[0].Path)
	assert.Equal(t, PreferImport, report.Conflicts[0].Kept)
}

func TestMerge_StockPreferCurrentWithoutSum(t *testing.T) {
	current := decodeObject(t, `{"estoque":[{"cod":"A","qtd":10}]}`)
	incoming := decodeObject(t, `{"estoque":[{"cod":"A","qtd":5}]}`)

	out, _ := Merge(current, incoming, WithSumStockQty(false))

	assert.Equal(t, "10", canonicalString(t, stockQty(t, out, "A")))
}

func TestMerge_StockFieldsAndAdditions(t *testing.T) {
	current := decodeObject(t, `{"estoque":[
		{"cod":"A","nome":"Arroz","preco_c":100,"qtd":1},
		{"nome":"sem codigo"}
	]}`)
	incoming := decodeObject(t, `{"estoque":[
		{"cod":"A","nome":"Arroz","preco_c":120,"qtd":2,"barcode":"789"},
		{"cod":"B","qtd":7},
		{"qtd":3}
	]}`)

	out, report := Merge(current, incoming)

	items := out["estoque"].([]any)
	require.Len(t, items, 2)
	a := items[0].(map[string]any)
	assert.Equal(t, "100", canonicalString(t, a["preco_c"]), "price conflict kept current")
	assert.Equal(t, "789", a["barcode"])
	assert.Equal(t, int64(3), a["qtd"])

	require.Len(t, report.Conflicts, 1)
	c := report.Conflicts[0]
	assert.Equal(t, "estoque[A].preco_c", c.Path)
	assert.Equal(t, "100", canonicalString(t, c.Current))
	assert.Equal(t, "120", canonicalString(t, c.Incoming))

	assert.Equal(t, 1, report.Collections["estoque"].Added)
	assert.Equal(t, 1, report.Collections["estoque"].Merged)
	assert.Len(t, report.Warnings, 2)
}

func TestMerge_KeysOnOneSide(t *testing.T) {
	current := decodeObject(t, `{"vendas":[],"settings":{"loja":"A"}}`)
	incoming := decodeObject(t, `{"devedores":[{"id":"d1"}],"settings":{"tema":"escuro"}}`)

	out, report := Merge(current, incoming)

	assert.Equal(t, []string{"devedores"}, report.Added)
	assert.Contains(t, report.Updated, "settings.tema")
	settings := out["settings"].(map[string]any)
	assert.Equal(t, "A", settings["loja"])
	assert.Equal(t, "escuro", settings["tema"])
	assert.Contains(t, out, "vendas")
}

func TestMerge_ArrayUnionByID(t *testing.T) {
	current := decodeObject(t, `{"vendas":[{"id":"s1","total_c":10},{"id":"s2","total_c":20}]}`)
	incoming := decodeObject(t, `{"vendas":[{"id":"s2","total_c":25},{"id":"s3","total_c":30}]}`)

	out, report := Merge(current, incoming, WithPrefer(PreferImport))

	sales := out["vendas"].([]any)
	require.Len(t, sales, 3)
	assert.Equal(t, "25", canonicalString(t, sales[1].(map[string]any)["total_c"]))
	assert.Equal(t, "s3", sales[2].(map[string]any)["id"])

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "vendas[id:s2].total_c", report.Conflicts[0].Path)
	assert.Equal(t, 1, report.Collections["vendas"].Added)
	assert.Equal(t, 1, report.Collections["vendas"].Merged)
}

func TestMerge_DebtorsByNormalizedFields(t *testing.T) {
	current := decodeObject(t, `{"devedores":[
		{"nome":"José da Silva","telefone":"(11) 98888-7777"},
		{"nome":"Maria","doc":"123.456.789-00"}
	]}`)
	incoming := decodeObject(t, `{"devedores":[
		{"nome":"jose  da silva","telefone":"11988887777","saldo_c":50},
		{"nome":"Maria S.","doc":"12345678900"},
		{"nome":"Ana"}
	]}`)

	out, report := Merge(current, incoming)

	debtors := out["devedores"].([]any)
	require.Len(t, debtors, 3)
	assert.Equal(t, "50", canonicalString(t, debtors[0].(map[string]any)["saldo_c"]))
	assert.Equal(t, "Maria", debtors[1].(map[string]any)["nome"])
	assert.Equal(t, 1, report.Collections["devedores"].Added)
}

func TestMerge_DebtorPhonesInE164(t *testing.T) {
	current := decodeObject(t, `{"devedores":[{"nome":"Carlos","telefone":"+55 (11) 98888-7777"}]}`)
	incoming := decodeObject(t, `{"devedores":[{"nome":"Carlos Souza","telefone":"(11) 98888-7777","saldo_c":90}]}`)

	out, report := Merge(current, incoming)

	debtors := out["devedores"].([]any)
	require.Len(t, debtors, 1)
	assert.Equal(t, "90", canonicalString(t, debtors[0].(map[string]any)["saldo_c"]))
	assert.Equal(t, 0, report.Collections["devedores"].Added)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "devedores[phone:+5511988887777].nome", report.Conflicts[0].Path)
}

func TestMerge_PhoneRegion(t *testing.T) {
	current := decodeObject(t, `{"devedores":[{"telefone":"+351 912 345 678"}]}`)
	incoming := decodeObject(t, `{"devedores":[{"telefone":"912 345 678","saldo_c":10}]}`)

	out, _ := Merge(current, incoming)
	assert.Len(t, out["devedores"].([]any), 2, "local numbers read as BR by default")

	out, _ = Merge(current, incoming, WithPhoneRegion("pt"))
	assert.Len(t, out["devedores"].([]any), 1)
}

func TestPhoneKey(t *testing.T) {
	assert.Equal(t, "+5511988887777", phoneKey("(11) 98888-7777", "BR"))
	assert.Equal(t, "+5511988887777", phoneKey("+55 11 98888 7777", "BR"))
	assert.Equal(t, "123", phoneKey("ramal 123", "BR"))
	assert.Equal(t, "", phoneKey("", "BR"))
}

func TestMerge_SaleVoidsBySaleID(t *testing.T) {
	current := decodeObject(t, `{"saleVoids":[{"id":"v1","saleId":"s1"}]}`)
	incoming := decodeObject(t, `{"saleVoids":[{"id":"v9","saleId":"s1"},{"id":"v2","saleId":"s2"}]}`)

	out, report := Merge(current, incoming)

	voids := out["saleVoids"].([]any)
	require.Len(t, voids, 2)
	assert.Equal(t, "v1", voids[0].(map[string]any)["id"])
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "saleVoids[sale:s1].id", report.Conflicts[0].Path)
}

func TestMerge_ContentFingerprintFallback(t *testing.T) {
	current := decodeObject(t, `{"fiscalQueue":[{"nfe":"1"},{"nfe":"2"}],"tags":["a","b"]}`)
	incoming := decodeObject(t, `{"fiscalQueue":[{"nfe":"2"},{"nfe":"3"}],"tags":["b","c"]}`)

	out, report := Merge(current, incoming)

	assert.Len(t, out["fiscalQueue"].([]any), 3)
	assert.Equal(t, []any{"a", "b", "c"}, out["tags"])
	assert.Empty(t, report.Conflicts)
}

func TestMerge_NestedArraysUseDefaultExtractors(t *testing.T) {
	current := decodeObject(t, `{"cashSessions":[{"id":"c1","movements":[{"id":"m1","amount_c":5}]}]}`)
	incoming := decodeObject(t, `{"cashSessions":[{"id":"c1","movements":[{"id":"m1","amount_c":5},{"id":"m2","amount_c":7}]}]}`)

	out, _ := Merge(current, incoming)

	session := out["cashSessions"].([]any)[0].(map[string]any)
	assert.Len(t, session["movements"].([]any), 2)
}

func TestMerge_MetaBookkeeping(t *testing.T) {
	current := decodeObject(t, `{"meta":{"createdAt":"2024-01-02T00:00:00Z","updatedAt":"2024-03-01T00:00:00Z","deviceId":"pdv-1"}}`)
	incoming := decodeObject(t, `{"meta":{"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-02-01T00:00:00Z","deviceId":"pdv-2"}}`)

	out, report := Merge(current, incoming)

	meta := out["meta"].(map[string]any)
	assert.Equal(t, "2024-01-01T00:00:00Z", meta["createdAt"])
	assert.Equal(t, "2024-03-01T00:00:00Z", meta["updatedAt"])
	assert.Equal(t, "pdv-1", meta["deviceId"])
	assert.Empty(t, report.Conflicts)
}

func TestMerge_InputsUntouched(t *testing.T) {
	current := decodeObject(t, `{"estoque":[{"cod":"A","qtd":1}],"settings":{"x":1}}`)
	incoming := decodeObject(t, `{"estoque":[{"cod":"A","qtd":2}],"settings":{"x":2}}`)
	curBefore, _ := canonical.Marshal(current)
	incBefore, _ := canonical.Marshal(incoming)

	_, _ = Merge(current, incoming, WithPrefer(PreferImport))

	curAfter, _ := canonical.Marshal(current)
	incAfter, _ := canonical.Marshal(incoming)
	assert.Equal(t, string(curBefore), string(curAfter))
	assert.Equal(t, string(incBefore), string(incAfter))
}

func TestMerge_Deterministic(t *testing.T) {
	current := decodeObject(t, `{"vendas":[{"id":"s1","a":1,"b":2}],"settings":{"z":1,"y":2}}`)
	incoming := decodeObject(t, `{"vendas":[{"id":"s1","a":3,"b":4}],"settings":{"z":5,"y":6}}`)

	_, first := Merge(current, incoming)
	for i := 0; i < 10; i++ {
		_, again := Merge(current, incoming)
		assert.Equal(t, first, again)
	}
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "jose da silva", foldName("  José  da SILVA "))
	assert.Equal(t, "joao", foldName("João"))
}

func canonicalString(t *testing.T, v any) string {
	t.Helper()
	data, err := canonical.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
