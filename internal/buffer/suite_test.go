package buffer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// exerciseBuffer runs behavior shared by every Buffer implementation.
func exerciseBuffer(t *testing.T, buf Buffer) {
	t.Helper()
	ctx := context.Background()

	entries, err := buf.DrainProject(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, entries)

	keyA := Key{OwnerID: 10, SubjectID: 100, ConditionGroupIDs: []int64{10}}
	keyB := Key{OwnerID: 11, SubjectID: 100, ConditionGroupIDs: []int64{11}}
	require.NoError(t, buf.Enqueue(ctx, 1, keyA, Payload{EventID: "e1"}))
	require.NoError(t, buf.Enqueue(ctx, 1, keyA, Payload{EventID: "e2"}))
	require.NoError(t, buf.Enqueue(ctx, 1, keyB, Payload{EventID: "e2"}))
	require.NoError(t, buf.Enqueue(ctx, 2, keyA, Payload{EventID: "e3"}))

	projects, err := buf.PendingProjects(ctx, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2}, projects)

	entries, err = buf.DrainProject(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2, "same key must merge")
	require.Equal(t, keyA, entries[0].Key)
	require.Equal(t, "e2", entries[0].Payload.EventID, "latest payload wins")
	require.Equal(t, keyB, entries[1].Key)

	again, err := buf.DrainProject(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, again, "second drain while leased must see nothing")

	keyC := Key{OwnerID: 12, SubjectID: 101, ConditionGroupIDs: []int64{12}}
	require.NoError(t, buf.Enqueue(ctx, 1, keyC, Payload{EventID: "e4"}))

	require.NoError(t, buf.Delete(ctx, 1, entries))

	projects, err = buf.PendingProjects(ctx, 0)
	require.NoError(t, err)
	require.Contains(t, projects, int64(1), "late enqueue keeps project indexed")

	entries, err = buf.DrainProject(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, keyC, entries[0].Key)
	require.NoError(t, buf.Delete(ctx, 1, entries))

	entries, err = buf.DrainProject(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, buf.Delete(ctx, 2, entries))

	projects, err = buf.PendingProjects(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, projects)
}

// exerciseConcurrentDrain checks that parallel drains never hand out a row twice.
func exerciseConcurrentDrain(t *testing.T, buf Buffer) {
	t.Helper()
	ctx := context.Background()

	for subject := int64(1); subject <= 50; subject++ {
		key := Key{OwnerID: 7, SubjectID: subject, ConditionGroupIDs: []int64{7}}
		require.NoError(t, buf.Enqueue(ctx, 9, key, Payload{EventID: "e"}))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		hits  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := buf.DrainProject(ctx, 9)
			if err != nil {
				t.Errorf("drain: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			total += len(entries)
			if len(entries) > 0 {
				hits++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, total)
	require.Equal(t, 1, hits)
}

// exerciseStaleDelete checks that a drain whose lease expired cannot release
// the lease of the drain that took over.
func exerciseStaleDelete(t *testing.T, buf Buffer, expireLease func()) {
	t.Helper()
	ctx := context.Background()
	key := Key{OwnerID: 1, SubjectID: 2, ConditionGroupIDs: []int64{1}}
	require.NoError(t, buf.Enqueue(ctx, 5, key, Payload{EventID: "e1"}))

	first, err := buf.DrainProject(ctx, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	expireLease()
	second, err := buf.DrainProject(ctx, 5)
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.NoError(t, buf.Delete(ctx, 5, first))
	require.NoError(t, buf.Enqueue(ctx, 5, Key{OwnerID: 1, SubjectID: 3, ConditionGroupIDs: []int64{1}}, Payload{EventID: "e2"}))
	blocked, err := buf.DrainProject(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, blocked, "stale delete must not release the current lease")

	require.NoError(t, buf.Delete(ctx, 5, second))
	next, err := buf.DrainProject(ctx, 5)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, "e2", next[0].Payload.EventID)
	require.NoError(t, buf.Delete(ctx, 5, next))
}

func entryFields(entries []Entry) []string {
	fields := make([]string, 0, len(entries))
	for _, entry := range entries {
		fields = append(fields, entry.Field)
	}
	return fields
}
