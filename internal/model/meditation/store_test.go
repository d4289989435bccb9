package meditation

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *MemoryStore, userID string, n int, base time.Time) []Session {
	t.Helper()
	out := make([]Session, 0, n)
	for i := 0; i < n; i++ {
		s := Session{
			ID:          fmt.Sprintf("%s-%02d", userID, i),
			UserID:      userID,
			SessionType: Types[i%len(Types)],
			Duration:    600,
			StartTime:   base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Insert(context.Background(), s))
		out = append(out, s)
	}
	return out
}

func TestMemoryStoreFindByIDScopedToOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed(t, store, "alice", 1, time.Now())

	_, err := store.FindByID(ctx, "alice-00", "alice")
	require.NoError(t, err)

	_, err = store.FindByID(ctx, "alice-00", "mallory")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListRecentOrdersNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed(t, store, "alice", 5, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	seed(t, store, "bob", 2, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	page, err := store.ListRecent(ctx, "alice", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "alice-03", page[0].ID)
	assert.Equal(t, "alice-02", page[1].ID)

	empty, err := store.ListRecent(ctx, "alice", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	count, err := store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestMemoryStoreListRecentOutOfRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed(t, store, "alice", 3, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	negative, err := store.ListRecent(ctx, "alice", -4, 2)
	require.NoError(t, err)
	assert.Empty(t, negative)

	all, err := store.ListRecent(ctx, "alice", 1, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreMarkCompletedOnlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sessions := seed(t, store, "alice", 1, time.Now())

	s := sessions[0]
	end := s.StartTime.Add(10 * time.Minute)
	s.Completed = true
	s.EndTime = &end
	s.MoodAfter = Calm

	require.NoError(t, store.MarkCompleted(ctx, s))

	s.MoodAfter = Sad
	assert.ErrorIs(t, store.MarkCompleted(ctx, s), ErrAlreadyCompleted)

	stored, err := store.FindByID(ctx, s.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, Calm, stored.MoodAfter)
}

func TestMemoryStoreAggregateCompletedOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sessions := seed(t, store, "alice", 3, time.Now().Add(-3*time.Hour))

	for _, s := range sessions[:2] {
		end := s.StartTime.Add(10 * time.Minute)
		s.Completed = true
		s.EndTime = &end
		s.FocusScore = intPtr(6)
		require.NoError(t, store.MarkCompleted(ctx, s))
	}

	totals, perType, err := store.Aggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Count)
	assert.Equal(t, 1200, totals.DurationSeconds)
	assert.Equal(t, 12, totals.FocusSum)
	assert.Equal(t, 2, totals.FocusCount)
	assert.Len(t, perType, 2)

	times, err := store.CompletedStartTimes(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.True(t, times[0].Equal(sessions[1].StartTime))
}
