package eventstore

import (
	"context"
	"testing"

	"alertrules/internal/domain"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	first := domain.Event{EventID: "e1", ProjectID: 1, GroupID: 10, DT: 1_700_000_000_000, Environment: "prod", Tags: map[string]string{"host": "a"}}
	second := domain.Event{EventID: "e2", ProjectID: 1, GroupID: 11, DT: 1_700_000_000_500}
	require.NoError(t, s.Put(ctx, first))
	require.NoError(t, s.Put(ctx, second))

	got, err := s.GetMany(ctx, []string{"e1", "missing", "e2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first, got["e1"])
	require.Equal(t, int64(11), got["e2"].GroupID)

	first.Message = "updated"
	require.NoError(t, s.Put(ctx, first))
	got, err = s.GetMany(ctx, []string{"e1"})
	require.NoError(t, err)
	require.Equal(t, "updated", got["e1"].Message)

	got, err = s.GetMany(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
