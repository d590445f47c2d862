package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/erpstore/internal/ids"
	"github.com/roach88/erpstore/internal/kv"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	mgr   *Manager
	mem   *kv.Memory
	clock *ids.FakeClock
}

// newTestManager builds a Manager over an in-memory store with a fake clock
// and sequential ids.
func newTestManager(t *testing.T, opts Options) *testEnv {
	t.Helper()
	mem := kv.NewMemory()
	clock := ids.NewFakeClock(testStart)
	opts.Clock = clock.Now
	if opts.IDs == nil {
		opts.IDs = ids.NewSequence("snap")
	}
	return &testEnv{mgr: New(mem, opts), mem: mem, clock: clock}
}

// createSQLiteManager builds a Manager over a temp-dir SQLite store.
func createSQLiteManager(t *testing.T) *Manager {
	t.Helper()
	s, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	clock := ids.NewFakeClock(testStart)
	return New(s, Options{Clock: clock.Now, IDs: ids.NewSequence("snap")})
}

func (e *testEnv) raw(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := e.mem.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}
