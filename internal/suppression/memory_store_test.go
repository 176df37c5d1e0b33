package suppression

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCooldownWindow(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 30 * time.Minute

	fired, err := store.TryFire(ctx, 1, 10, t0, cooldown)
	require.NoError(t, err)
	require.True(t, fired)

	fired, err = store.TryFire(ctx, 1, 10, t0.Add(29*time.Minute), cooldown)
	require.NoError(t, err)
	require.False(t, fired, "fire inside cooldown must be suppressed")

	fired, err = store.TryFire(ctx, 1, 10, t0.Add(31*time.Minute), cooldown)
	require.NoError(t, err)
	require.True(t, fired)

	record, err := store.GetOrCreate(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, record.LastActive)
	require.Equal(t, t0.Add(31*time.Minute), *record.LastActive)
}

func TestMemoryStoreSubjectsAreIndependent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fired, err := store.TryFire(ctx, 1, 10, now, time.Hour)
	require.NoError(t, err)
	require.True(t, fired)
	fired, err = store.TryFire(ctx, 1, 11, now, time.Hour)
	require.NoError(t, err)
	require.True(t, fired)
	fired, err = store.TryFire(ctx, 2, 10, now, time.Hour)
	require.NoError(t, err)
	require.True(t, fired)
}

func TestMemoryStoreConcurrentTryFireHasOneWinner(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			fired, err := store.TryFire(context.Background(), 7, 70, now, time.Hour)
			if err == nil && fired {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestMemoryStoreGetOrCreateBulk(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	records, err := store.GetOrCreateBulk(context.Background(), []int64{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for ruleID, record := range records {
		require.Equal(t, ruleID, record.RuleID)
		require.Equal(t, int64(5), record.GroupID)
		require.Nil(t, record.LastActive)
	}
}

func TestRecordCanFireBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exact := now.Add(-30 * time.Minute)
	require.True(t, Record{}.CanFire(now, 30*time.Minute))
	require.True(t, Record{LastActive: &exact}.CanFire(now, 30*time.Minute))
	inside := now.Add(-29 * time.Minute)
	require.False(t, Record{LastActive: &inside}.CanFire(now, 30*time.Minute))
}
