package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	var gen Generator = UUIDv7Generator{}

	a := gen.NewID()
	b := gen.NewID()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestSequence(t *testing.T) {
	seq := NewSequence("mov")
	assert.Equal(t, "mov-1", seq.NewID())
	assert.Equal(t, "mov-2", seq.NewID())

	assert.Equal(t, "id-1", NewSequence("").NewID())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	seq := NewSequence("x")
	seen := sync.Map{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(seq.NewID(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	var clock Clock = c.Now

	assert.Equal(t, start, clock())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock())
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SystemClock().Location())
}
