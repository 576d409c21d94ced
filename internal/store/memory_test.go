package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/colormemory/internal/game"
)

func TestStoreGetMissing(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(context.Background(), "nope"), ErrNotFound)
}

func TestStoreSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := NewSession(NewID(), game.New())
	require.NotEmpty(t, s.ID)

	require.NoError(t, st.Save(ctx, s))
	assert.Equal(t, 1, st.Len())

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, st.Delete(ctx, s.ID))
	assert.Zero(t, st.Len())
	_, err = st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewSession(NewID(), game.New()).ID
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestStoreSweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore().(*memory)
	now := time.Now()
	m.now = func() time.Time { return now }

	fresh := NewSession(NewID(), game.New())
	idle := NewSession(NewID(), game.New())
	idle.lastSeen.Store(now.Add(-time.Hour).UnixNano())
	require.NoError(t, m.Save(ctx, fresh))
	require.NoError(t, m.Save(ctx, idle))

	assert.Equal(t, 1, m.Sweep(ctx, 30*time.Minute))
	assert.Equal(t, 1, m.Len())
	_, err := m.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewSession(NewID(), game.New())
			_ = st.Save(ctx, s)
			ids <- s.ID
		}()
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		_, err := st.Get(ctx, id)
		assert.NoError(t, err)
	}
	assert.Equal(t, 50, st.Len())
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunJanitor(ctx, NewMemoryStore(), time.Millisecond, time.Hour, zerolog.Nop())
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
