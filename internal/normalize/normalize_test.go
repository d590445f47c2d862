package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/canonical"
	"github.com/roach88/erpstore/internal/schema"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func decode(t *testing.T, text string) any {
	t.Helper()
	v, err := canonical.Decode([]byte(text))
	require.NoError(t, err)
	return v
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestNormalizeDB_NonObjectReplacedWithDefault(t *testing.T) {
	for _, in := range []any{nil, "text", json.Number("3"), []any{1, 2}, true} {
		db, warnings := NormalizeDB(in, testNow)
		require.NotNil(t, db)
		assert.Equal(t, schema.DefaultDB(testNow), db)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "not an object")
	}
}

func TestNormalizeDB_FillsMissingCollections(t *testing.T) {
	db, _ := NormalizeDB(map[string]any{"estoque": "oops", "caixa": []any{}}, testNow)

	assert.Equal(t, int(schema.CurrentVersion), db.SchemaVersion)
	assert.NotNil(t, db.Estoque)
	assert.NotNil(t, db.Vendas)
	assert.NotNil(t, db.CashSessions)
	assert.NotNil(t, db.StockMovements)
	assert.NotNil(t, db.SaleVoids)
	assert.NotNil(t, db.FiscalQueue)
	assert.NotNil(t, db.Settings)
	assert.Equal(t, "", db.Caixa.OpenSessionID)
}

func TestNormalizeDB_Products(t *testing.T) {
	in := decode(t, `{"estoque":[
		{"cod":" A1 ","nome":"Arroz","qtd":-4,"preco_c":"1.250","custo_c":-1,"lucro_p":"12,5"},
		{"cod":"A1","nome":"Duplicate","qtd":9},
		{"nome":"No code","qtd":1},
		{"cod":123,"qtd":"2,6"},
		"garbage"
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.Estoque, 2)
	a := db.Estoque[0]
	assert.Equal(t, "A1", a.Cod)
	assert.Equal(t, "Arroz", a.Nome)
	assert.Equal(t, int64(0), a.Qtd)
	assert.Equal(t, int64(1250), a.PrecoC)
	assert.Equal(t, int64(0), a.CustoC)
	assert.InDelta(t, 12.5, a.LucroP, 1e-9)

	b := db.Estoque[1]
	assert.Equal(t, "123", b.Cod)
	assert.Equal(t, int64(3), b.Qtd)

	assert.True(t, hasWarning(warnings, "negative stock corrected for code A1"))
	assert.True(t, hasWarning(warnings, "negative cost corrected for code A1"))
	assert.True(t, hasWarning(warnings, "duplicate code A1"))
	assert.True(t, hasWarning(warnings, "has no code"))
	assert.True(t, hasWarning(warnings, "estoque[4] is not an object"))
	assert.True(t, hasWarning(warnings, `code " A1 " trimmed`))
}

func TestNormalizeDB_NumbersOutOfRange(t *testing.T) {
	in := decode(t, `{"estoque":[
		{"cod":"A","qtd":1e20,"preco_c":"99999999999999999999","custo_c":"12.50"}
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.Estoque, 1)
	a := db.Estoque[0]
	assert.Equal(t, int64(0), a.Qtd)
	assert.Equal(t, int64(0), a.PrecoC)
	assert.Equal(t, int64(1250), a.CustoC)
	assert.True(t, hasWarning(warnings, "stock of A 100000000000000000000 is out of range"))
	assert.True(t, hasWarning(warnings, "invalid stock for code A; set to 0"))
	assert.True(t, hasWarning(warnings, "invalid price for code A; set to 0"))
	assert.True(t, hasWarning(warnings, `cost of A "12.50" read as BR locale`))

	text, err := canonical.Marshal(db)
	require.NoError(t, err)
	_, again := NormalizeDB(decode(t, string(text)), testNow)
	assert.Empty(t, again)
}

func TestNormalizeDB_Sales(t *testing.T) {
	in := decode(t, `{"vendas":[
		{"id":"s1","itens":[{"cod":"A","qtd":2,"preco_c":500}],"desconto_c":100},
		{"id":"s2","subtotal_c":300,"desconto_c":500,"status":"CANCELADO"},
		{"id":"s3","total_c":700,"status":"ativa"},
		{"itens":[]}
	]}`)

	db, warnings := NormalizeDB(in, testNow)
	require.Len(t, db.Vendas, 4)

	s1 := db.Vendas[0]
	assert.Equal(t, int64(1000), s1.SubtotalC)
	assert.Equal(t, int64(900), s1.TotalC)
	assert.Equal(t, schema.SaleActive, s1.Status)

	s2 := db.Vendas[1]
	assert.Equal(t, int64(0), s2.TotalC)
	assert.Equal(t, schema.SaleCancelled, s2.Status)

	assert.Equal(t, int64(700), db.Vendas[2].TotalC)
	assert.True(t, strings.HasPrefix(db.Vendas[3].ID, "sale-"))

	assert.True(t, hasWarning(warnings, "total missing or invalid for sale s1"))
	assert.True(t, hasWarning(warnings, `status "CANCELADO" of sale s2`))
	assert.False(t, hasWarning(warnings, "sale s3"))
}

func TestNormalizeDB_Movements(t *testing.T) {
	in := decode(t, `{"stockMovements":[
		{"id":"m1","type":"saida","productCod":"A","qtyDelta":5},
		{"id":"m2","type":"entrada","productCod":"A","qtyDelta":-3},
		{"id":"m3","type":"ajuste","productCod":"A","qtyDelta":-2},
		{"id":"m4","type":"roubo","productCod":"A","qtyDelta":1},
		{"id":"m5","type":"perda","qtyDelta":1}
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.StockMovements, 3)
	assert.Equal(t, int64(-5), db.StockMovements[0].QtyDelta)
	assert.Equal(t, int64(3), db.StockMovements[1].QtyDelta)
	assert.Equal(t, int64(-2), db.StockMovements[2].QtyDelta)
	assert.True(t, hasWarning(warnings, `unknown type "roubo"`))
	assert.True(t, hasWarning(warnings, "no product code"))
	assert.True(t, hasWarning(warnings, "movement m1 sign corrected"))
}

func TestNormalizeDB_ClosedSessionGetsDiff(t *testing.T) {
	in := decode(t, `{"cashSessions":[
		{"id":"c1","openedAtIso":"t0","closedAtIso":"t1","initial_c":1000,"expected_c":1500,"counted_c":1400,"movements":[]}
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.CashSessions, 1)
	s := db.CashSessions[0]
	require.NotNil(t, s.DiffC)
	assert.Equal(t, int64(-100), *s.DiffC)
	assert.True(t, hasWarning(warnings, "difference computed as -100"))
}

func TestNormalizeDB_OpenSessionExpectedFollowsMovements(t *testing.T) {
	in := decode(t, `{"caixa":{"openSessionId":"S"},"cashSessions":[
		{"id":"S","openedAtIso":"t0","initial_c":1000,"expected_c":1500,"movements":[
			{"id":"m-a","type":"venda","amount_c":500},
			{"id":"m-b","type":"venda","amount_c":300}
		]},
		{"id":"K","openedAtIso":"t0","closedAtIso":"t1","initial_c":0,"expected_c":50,"counted_c":50,"diff_c":0,"movements":[
			{"id":"m-c","type":"venda","amount_c":80}
		]}
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.CashSessions, 2)
	assert.Equal(t, int64(1800), db.CashSessions[0].ExpectedC)
	assert.True(t, hasWarning(warnings, "open session S expected amount 1500 does not match its movements; set to 1800"))

	closed := db.CashSessions[1]
	assert.Equal(t, int64(50), closed.ExpectedC, "closed sessions keep their totals")
	assert.Equal(t, int64(0), *closed.DiffC)
}

func TestNormalizeDB_DuplicateSessionIDs(t *testing.T) {
	in := decode(t, `{"caixa":{"openSessionId":"S"},"cashSessions":[
		{"id":"S","openedAtIso":"t0","initial_c":100,"expected_c":100},
		{"id":"S","openedAtIso":"t1","initial_c":900,"expected_c":900}
	]}`)

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.CashSessions, 1)
	assert.Equal(t, "t0", db.CashSessions[0].OpenedAtISO)
	assert.Equal(t, "S", db.Caixa.OpenSessionID)
	assert.True(t, hasWarning(warnings, "duplicate cash session S"))

	open := 0
	for _, s := range db.CashSessions {
		if s.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestNormalizeDB_RegisterPointer(t *testing.T) {
	t.Run("dangling pointer cleared", func(t *testing.T) {
		in := decode(t, `{"caixa":{"openSessionId":"ghost"},"cashSessions":[]}`)
		db, warnings := NormalizeDB(in, testNow)
		assert.Equal(t, "", db.Caixa.OpenSessionID)
		assert.True(t, hasWarning(warnings, "ghost is dangling"))
	})

	t.Run("pointer to closed session cleared", func(t *testing.T) {
		in := decode(t, `{"caixa":{"openSessionId":"c1"},"cashSessions":[
			{"id":"c1","closedAtIso":"t1","expected_c":0,"counted_c":0,"diff_c":0}
		]}`)
		db, _ := NormalizeDB(in, testNow)
		assert.Equal(t, "", db.Caixa.OpenSessionID)
	})

	t.Run("unreferenced open session adopted", func(t *testing.T) {
		in := decode(t, `{"caixa":{},"cashSessions":[
			{"id":"c1","openedAtIso":"t0","closedAtIso":null,"initial_c":100,"expected_c":100}
		]}`)
		db, warnings := NormalizeDB(in, testNow)
		assert.Equal(t, "c1", db.Caixa.OpenSessionID)
		assert.True(t, hasWarning(warnings, "c1 adopted"))
	})

	t.Run("second open session force-closed", func(t *testing.T) {
		in := decode(t, `{"caixa":{"openSessionId":"c2"},"cashSessions":[
			{"id":"c1","openedAtIso":"t0","initial_c":100,"expected_c":250},
			{"id":"c2","openedAtIso":"t1","initial_c":0,"expected_c":0}
		]}`)
		db, warnings := NormalizeDB(in, testNow)
		assert.Equal(t, "c2", db.Caixa.OpenSessionID)
		assert.True(t, hasWarning(warnings, "open session c1 expected amount 250 does not match"))

		c1 := db.CashSessions[0]
		require.False(t, c1.Open())
		assert.Equal(t, "t0", *c1.ClosedAtISO)
		assert.Equal(t, int64(100), *c1.CountedC)
		assert.Equal(t, int64(0), *c1.DiffC)
		assert.True(t, db.CashSessions[1].Open())
	})
}

func TestNormalizeDB_VoidsAuditFiscal(t *testing.T) {
	audit := make([]any, schema.MaxAuditEntries+3)
	for i := range audit {
		audit[i] = map[string]any{"id": json.Number(strconv.Itoa(i)), "action": "x"}
	}
	audit[len(audit)-1] = map[string]any{"id": "last", "action": "final"}

	in := map[string]any{
		"saleVoids": []any{
			map[string]any{"id": "v1", "saleId": "s1", "restock": true, "movementIds": []any{"m1", "m2"}},
			map[string]any{"id": "v2", "saleId": "s1"},
			map[string]any{"id": "v3"},
		},
		"auditLog":    audit,
		"fiscalQueue": []any{map[string]any{"nfe": "1"}, "bad", json.Number("2")},
	}

	db, warnings := NormalizeDB(in, testNow)

	require.Len(t, db.SaleVoids, 1)
	assert.Equal(t, "v1", db.SaleVoids[0].ID)
	assert.True(t, db.SaleVoids[0].Restock)
	assert.Equal(t, []string{"m1", "m2"}, db.SaleVoids[0].MovementIDs)
	assert.True(t, hasWarning(warnings, "duplicate void for sale s1"))

	assert.Len(t, db.AuditLog, schema.MaxAuditEntries)
	assert.Equal(t, "last", db.AuditLog[len(db.AuditLog)-1].ID)
	assert.True(t, hasWarning(warnings, "oldest 3 dropped"))

	assert.Len(t, db.FiscalQueue, 1)
}

func TestNormalizeDB_ValidDatabaseUntouched(t *testing.T) {
	db := schema.DefaultDB(testNow)
	db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Nome: "Arroz", Qtd: 4, PrecoC: 990})

	out, warnings := NormalizeDB(db, testNow)

	assert.Empty(t, warnings)
	assert.Equal(t, db, out)
}

func TestNormalizeDB_FixedPoint(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"estoque":"x","vendas":null,"caixa":7}`,
		`{"estoque":[{"cod":" B ","qtd":"-3","preco_c":"R$ 1.000,49"},{"cod":"B"},{"qtd":1}],
		  "vendas":[{"itens":[{"cod":"B","qtd":1,"preco_c":10}],"status":"?"}],
		  "stockMovements":[{"type":"perda","productCod":"B","qtyDelta":4}],
		  "cashSessions":[{"id":"c1","initial_c":"10,00"},{"id":"c2","closedAtIso":"t","counted_c":3}],
		  "caixa":{"openSessionId":"nope"},
		  "saleVoids":[{"saleId":"x"},{"saleId":"x"}],
		  "fiscalQueue":[1,{"a":1}],
		  "meta":{"remoteRev":"3"}}`,
	}
	for _, text := range inputs {
		first, _ := NormalizeDB(decode(t, text), testNow)
		firstBytes, err := canonical.Marshal(first)
		require.NoError(t, err)

		second, warnings := NormalizeDB(decode(t, string(firstBytes)), testNow)
		secondBytes, err := canonical.Marshal(second)
		require.NoError(t, err)

		assert.Equal(t, string(firstBytes), string(secondBytes), text)
		assert.Empty(t, warnings, text)
	}
}

func TestChecksum32MatchesCanonical(t *testing.T) {
	assert.Equal(t, canonical.Checksum32("abc"), Checksum32("abc"))
}
