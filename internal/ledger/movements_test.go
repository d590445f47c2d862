package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/schema"
)

func TestAddMovement_SignFollowsType(t *testing.T) {
	e := newTestLedger(t)
	e.product(t, "A", 10, 500)

	tests := []struct {
		name  string
		typ   schema.MovementType
		qty   int64
		delta int64
		want  int64
	}{
		{"entrada adds", schema.MovementEntrada, 5, 5, 15},
		{"saida subtracts", schema.MovementSaida, 3, -3, 12},
		{"negative entrada is re-signed", schema.MovementEntrada, -2, 2, 14},
		{"perda subtracts", schema.MovementPerda, 4, -4, 10},
		{"devolucao adds", schema.MovementDevolucao, 1, 1, 11},
		{"ajuste keeps sign", schema.MovementAjuste, -6, -6, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mv, err := e.ledger.AddMovement(e.ctx, System, MovementInput{Type: tt.typ, ProductCod: "A", Qty: tt.qty})
			require.NoError(t, err)
			assert.Equal(t, tt.delta, mv.QtyDelta)
			assert.Equal(t, tt.want, e.qty(t, "A"))
		})
	}
}

func TestAddMovement_ClampsAtZero(t *testing.T) {
	e := newTestLedger(t)
	e.product(t, "A", 3, 500)

	mv, err := e.ledger.AddMovement(e.ctx, System, MovementInput{Type: schema.MovementSaida, ProductCod: "A", Qty: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(0), e.qty(t, "A"))
	assert.Equal(t, int64(-5), mv.QtyDelta)
	assert.Equal(t, true, mv.Meta["clamped"])
	assert.Equal(t, int64(3), mv.Meta["qtyBefore"])
	assert.Equal(t, int64(0), mv.Meta["qtyAfter"])
}

func TestAddMovement_Rejects(t *testing.T) {
	e := newTestLedger(t)
	e.product(t, "A", 3, 500)
	before := e.stored(t)

	_, err := e.ledger.AddMovement(e.ctx, System, MovementInput{Type: "roubo", ProductCod: "A", Qty: 1})
	assert.ErrorIs(t, err, ErrInvalidMovement)

	_, err = e.ledger.AddMovement(e.ctx, System, MovementInput{Type: schema.MovementEntrada, ProductCod: "A"})
	assert.ErrorIs(t, err, ErrInvalidMovement)

	_, err = e.ledger.AddMovement(e.ctx, System, MovementInput{Type: schema.MovementEntrada, ProductCod: "ZZ", Qty: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, CodeProductNotFound, CodeOf(err))

	assert.Equal(t, before, e.stored(t))
}

func TestAddMovement_RecordsActorAndAudit(t *testing.T) {
	e := newTestLedger(t)
	e.product(t, "A", 0, 500)

	_, err := e.ledger.AddMovement(e.ctx, Actor{ID: "op-7"}, MovementInput{
		Type:       schema.MovementEntrada,
		ProductCod: "A",
		Qty:        2,
		Reason:     "compra",
	})
	require.NoError(t, err)

	db := e.db(t)
	last := db.StockMovements[len(db.StockMovements)-1]
	assert.Equal(t, "op-7", last.Actor)
	assert.Equal(t, "compra", last.Reason)

	entry := db.AuditLog[len(db.AuditLog)-1]
	assert.Equal(t, "stock.movement", entry.Action)
	assert.Equal(t, "op-7", entry.Actor)
	assert.Equal(t, "A", entry.EntityID)
}

func TestListMovements(t *testing.T) {
	e := newTestLedger(t)
	e.product(t, "A", 1, 100)
	e.product(t, "B", 1, 100)
	for i := 0; i < 3; i++ {
		_, err := e.ledger.AddMovement(e.ctx, System, MovementInput{Type: schema.MovementEntrada, ProductCod: "A", Qty: int64(i + 1)})
		require.NoError(t, err)
	}

	all, err := e.ledger.ListMovements(e.ctx, MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	onlyA, err := e.ledger.ListMovements(e.ctx, MovementFilter{ProductCod: "A", Limit: 2})
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, int64(2), onlyA[0].QtyDelta)
	assert.Equal(t, int64(3), onlyA[1].QtyDelta)
}
