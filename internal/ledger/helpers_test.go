package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

var testStart = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	ctx    context.Context
	ledger *Ledger
	store  *store.Manager
	mem    *kv.Memory
	clock  *ids.FakeClock
}

func newTestLedger(t *testing.T) *testEnv {
	t.Helper()
	mem := kv.NewMemory()
	clock := ids.NewFakeClock(testStart)
	mgr := store.New(mem, store.Options{Clock: clock.Now, IDs: ids.NewSequence("snap")})
	_, err := mgr.Init(context.Background())
	require.NoError(t, err)
	l := New(mgr, Options{IDs: ids.NewSequence("id"), Clock: clock.Now})
	return &testEnv{ctx: context.Background(), ledger: l, store: mgr, mem: mem, clock: clock}
}

// product creates a product with qty units on hand.
func (e *testEnv) product(t *testing.T, cod string, qty, precoC int64) {
	t.Helper()
	_, err := e.ledger.UpsertProduct(e.ctx, System, ProductInput{
		Cod:        cod,
		Nome:       "Produto " + cod,
		CustoC:     precoC / 2,
		PrecoC:     precoC,
		InitialQty: qty,
	})
	require.NoError(t, err)
}

func (e *testEnv) db(t *testing.T) *schema.Database {
	t.Helper()
	db, err := e.store.Get(e.ctx)
	require.NoError(t, err)
	return db
}

func (e *testEnv) qty(t *testing.T, cod string) int64 {
	t.Helper()
	db := e.db(t)
	i := db.FindProduct(cod)
	require.GreaterOrEqual(t, i, 0, "product %s not found", cod)
	return db.Estoque[i].Qtd
}

func (e *testEnv) stored(t *testing.T) string {
	t.Helper()
	v, ok, err := e.mem.Get(e.ctx, e.store.Key())
	require.NoError(t, err)
	require.True(t, ok)
	return v
}
