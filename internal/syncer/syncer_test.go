package syncer

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
	"github.com/roach88/erpstore/internal/merge"
	"github.com/roach88/erpstore/internal/remote"
	"github.com/roach88/erpstore/internal/schema"
	"github.com/roach88/erpstore/internal/store"
)

var testStart = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type device struct {
	mgr    *store.Manager
	mem    *kv.Memory
	syncer *Syncer
}

// newDevice builds a local store synced against client.
func newDevice(t *testing.T, client remote.Client) *device {
	t.Helper()
	mem := kv.NewMemory()
	clock := ids.NewFakeClock(testStart)
	mgr := store.New(mem, store.Options{Clock: clock.Now, IDs: ids.NewSequence("snap")})
	_, err := mgr.Init(context.Background())
	require.NoError(t, err)
	return &device{mgr: mgr, mem: mem, syncer: New(mgr, client, Options{Clock: clock.Now})}
}

func newRemote(t *testing.T, tenant string, blocked ...string) remote.Client {
	t.Helper()
	s := remote.NewServer(kv.NewMemory(), remote.ServerOptions{BlockedTenants: blocked})
	ts := httptest.NewServer(adaptor.FiberApp(s.App()))
	t.Cleanup(ts.Close)
	return remote.NewHTTPClient(ts.URL, tenant, "tok", time.Second)
}

func (d *device) edit(t *testing.T, fn func(db *schema.Database)) {
	t.Helper()
	_, err := d.mgr.Update(context.Background(), store.SaveOptions{}, func(db *schema.Database) error {
		fn(db)
		return nil
	})
	require.NoError(t, err)
}

func (d *device) db(t *testing.T) *schema.Database {
	t.Helper()
	db, err := d.mgr.Get(context.Background())
	require.NoError(t, err)
	return db
}

func TestSync_FirstPush(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, "loja")
	d := newDevice(t, client)
	d.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Nome: "Arroz", Qtd: 5})
	})

	res, err := d.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionPushed, res.Action)
	assert.Equal(t, int64(1), res.Rev)
	assert.Equal(t, int64(1), d.db(t).Meta.RemoteRev)

	load, err := client.Load(ctx)
	require.NoError(t, err)
	require.True(t, load.OK)
	var remoteDB schema.Database
	require.NoError(t, json.Unmarshal(load.DB, &remoteDB))
	require.Len(t, remoteDB.Estoque, 1)
	assert.Equal(t, "A", remoteDB.Estoque[0].Cod)
}

func TestSync_MergesTwoDevices(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, "loja")
	a := newDevice(t, client)
	b := newDevice(t, client)

	a.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Nome: "Arroz", Qtd: 5})
		db.Vendas = append(db.Vendas, schema.Sale{ID: "v-a", TotalC: 100, Status: schema.SaleActive})
	})
	b.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "B", Nome: "Feijao", Qtd: 2})
		db.Vendas = append(db.Vendas, schema.Sale{ID: "v-b", TotalC: 200, Status: schema.SaleActive})
	})

	_, err := a.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	res, err := b.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, res.Action)
	assert.Equal(t, int64(2), res.Rev)
	require.NotNil(t, res.Report)

	got := b.db(t)
	assert.Len(t, got.Estoque, 2)
	assert.Len(t, got.Vendas, 2)
	assert.Equal(t, int64(2), got.Meta.RemoteRev)

	res, err = a.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rev)
	assert.Len(t, a.db(t).Vendas, 2)
	assert.Equal(t, int64(5), a.db(t).Estoque[a.db(t).FindProduct("A")].Qtd)
}

func TestSync_SharedOpenSessionKeepsExpectedAmount(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, "loja")
	a := newDevice(t, client)
	b := newDevice(t, client)

	openWith := func(id string, amount int64) func(db *schema.Database) {
		return func(db *schema.Database) {
			db.CashSessions = append(db.CashSessions, schema.CashSession{
				ID:          "S",
				OpenedAtISO: "2024-07-01T09:00:00Z",
				InitialC:    1000,
				ExpectedC:   1000 + amount,
				Movements:   []schema.CashMovement{{ID: id, Type: schema.CashVenda, AmountC: amount}},
			})
			db.Caixa.OpenSessionID = "S"
		}
	}
	a.edit(t, openWith("m-a", 500))
	b.edit(t, openWith("m-b", 300))

	_, err := a.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	res, err := b.syncer.Sync(ctx, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, res.Action)

	got := b.db(t)
	require.Len(t, got.CashSessions, 1)
	s := got.CashSessions[0]
	assert.Len(t, s.Movements, 2)
	assert.Equal(t, int64(1800), s.ExpectedC)
	assert.Equal(t, "S", got.Caixa.OpenSessionID)
}

func TestSync_RepeatIsStable(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, "loja")
	d := newDevice(t, client)
	d.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Qtd: 5})
	})

	for i := 0; i < 3; i++ {
		_, err := d.syncer.Sync(ctx, SyncOptions{})
		require.NoError(t, err)
	}
	db := d.db(t)
	assert.Equal(t, int64(5), db.Estoque[0].Qtd)
	assert.Equal(t, int64(3), db.Meta.RemoteRev)
}

func TestSync_PreferImport(t *testing.T) {
	ctx := context.Background()
	client := newRemote(t, "loja")
	a := newDevice(t, client)
	b := newDevice(t, client)
	a.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Nome: "Remoto", PrecoC: 900})
	})
	b.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Nome: "Local", PrecoC: 500})
	})
	_, err := a.syncer.Push(ctx)
	require.NoError(t, err)

	res, err := b.syncer.Pull(ctx, SyncOptions{Prefer: merge.PreferImport})
	require.NoError(t, err)
	assert.Equal(t, ActionPulled, res.Action)
	assert.NotEmpty(t, res.Report.Conflicts)

	got := b.db(t)
	assert.Equal(t, "Remoto", got.Estoque[0].Nome)
	assert.Equal(t, int64(900), got.Estoque[0].PrecoC)
	assert.Equal(t, int64(1), got.Meta.RemoteRev)
}

func TestPull_NotFound(t *testing.T) {
	d := newDevice(t, newRemote(t, "vazia"))
	_, err := d.syncer.Pull(context.Background(), SyncOptions{})
	assert.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestSync_BlockedWritesNothing(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, newRemote(t, "caloteiro", "caloteiro"))
	d.edit(t, func(db *schema.Database) {
		db.Estoque = append(db.Estoque, schema.Product{Cod: "A", Qtd: 1})
	})
	before, _, err := d.mem.Get(ctx, d.mgr.Key())
	require.NoError(t, err)

	_, err = d.syncer.Sync(ctx, SyncOptions{})
	assert.ErrorIs(t, err, ErrAccountBlocked)
	_, err = d.syncer.Push(ctx)
	assert.ErrorIs(t, err, ErrAccountBlocked)
	_, err = d.syncer.Pull(ctx, SyncOptions{})
	assert.ErrorIs(t, err, ErrAccountBlocked)

	after, _, err := d.mem.Get(ctx, d.mgr.Key())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
