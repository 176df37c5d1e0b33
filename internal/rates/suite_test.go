package rates

import (
	"context"
	"testing"
	"time"

	"alertrules/internal/domain"

	"github.com/stretchr/testify/require"
)

type store interface {
	Recorder
	Handlers() Handlers
}

var suiteBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func recordAt(t *testing.T, s store, id string, group int64, env, user string, at time.Time) {
	t.Helper()
	require.NoError(t, s.Record(context.Background(), domain.Event{
		EventID:     id,
		ProjectID:   1,
		GroupID:     group,
		DT:          at.UnixMilli(),
		Environment: env,
		UserID:      user,
	}))
}

func exerciseStore(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	handlers := s.Handlers()

	counts, err := handlers.Lookup(KindEventCount)
	require.NoError(t, err)
	users, err := handlers.Lookup(KindUniqueUsers)
	require.NoError(t, err)
	_, err = handlers.Lookup("event_frequency_percent")
	require.Error(t, err)

	recordAt(t, s, "e1", 100, "production", "u1", suiteBase.Add(-50*time.Minute))
	recordAt(t, s, "e2", 100, "production", "u1", suiteBase.Add(-10*time.Minute))
	recordAt(t, s, "e3", 100, "staging", "u2", suiteBase.Add(-5*time.Minute))
	recordAt(t, s, "e4", 100, "production", "", suiteBase.Add(-90*time.Minute))
	recordAt(t, s, "e5", 200, "production", "u3", suiteBase.Add(-time.Minute))
	recordAt(t, s, "e2", 100, "production", "u1", suiteBase.Add(-10*time.Minute))

	got, err := counts.GetRatesBulk(ctx, time.Hour, []int64{100, 200, 300}, "", suiteBase)
	require.NoError(t, err)
	require.Equal(t, map[int64]float64{100: 3, 200: 1, 300: 0}, got)

	got, err = counts.GetRatesBulk(ctx, time.Hour, []int64{100}, "production", suiteBase)
	require.NoError(t, err)
	require.Equal(t, float64(2), got[100])

	got, err = counts.GetRatesBulk(ctx, time.Hour, []int64{100}, "production", suiteBase.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, float64(1), got[100], "shifted window sees only the older event")

	got, err = counts.GetRatesBulk(ctx, 10*time.Minute, []int64{100}, "", suiteBase)
	require.NoError(t, err)
	require.Equal(t, float64(1), got[100], "window end is inclusive and start exclusive")

	got, err = users.GetRatesBulk(ctx, time.Hour, []int64{100, 200}, "", suiteBase)
	require.NoError(t, err)
	require.Equal(t, map[int64]float64{100: 2, 200: 1}, got)

	got, err = counts.GetRatesBulk(ctx, time.Hour, nil, "", suiteBase)
	require.NoError(t, err)
	require.Empty(t, got)
}

// exerciseUniqueUsersAcrossWindows checks that a user seen in two windows
// counts in both of them.
func exerciseUniqueUsersAcrossWindows(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	users, err := s.Handlers().Lookup(KindUniqueUsers)
	require.NoError(t, err)

	dayAgo := suiteBase.Add(-24 * time.Hour).Add(-time.Minute)
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		recordAt(t, s, "prev-"+user, 300, "", user, dayAgo)
	}
	for _, user := range []string{"u1", "u2", "u3", "u4", "u6", "u7", "u8", "u9", "u10"} {
		recordAt(t, s, "cur-"+user, 300, "", user, suiteBase.Add(-time.Minute))
	}
	recordAt(t, s, "cur-u1-again", 300, "", "u1", suiteBase.Add(-30*time.Second))

	current, err := users.GetRatesBulk(ctx, time.Hour, []int64{300}, "", suiteBase)
	require.NoError(t, err)
	previous, err := users.GetRatesBulk(ctx, time.Hour, []int64{300}, "", suiteBase.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, float64(9), current[300])
	require.Equal(t, float64(5), previous[300])
}
