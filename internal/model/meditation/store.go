package meditation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrAlreadyCompleted = errors.New("session already completed")
)

// Totals holds raw sums over a user's completed sessions.
type Totals struct {
	Count           int
	DurationSeconds int
	FocusSum        int
	FocusCount      int
}

// TypeTotals holds raw sums per practice type.
type TypeTotals struct {
	Type            Type
	Count           int
	DurationSeconds int
}

// Store persists sessions. Every lookup is scoped by owner.
type Store interface {
	Insert(ctx context.Context, s Session) error
	// FindByID returns ErrNotFound when the session is absent or owned by someone else.
	FindByID(ctx context.Context, id, userID string) (Session, error)
	// MarkCompleted writes the completion fields only if the stored record is
	// still incomplete, returning ErrAlreadyCompleted otherwise.
	MarkCompleted(ctx context.Context, s Session) error
	// ListRecent returns sessions ordered by start time, newest first.
	ListRecent(ctx context.Context, userID string, skip, limit int) ([]Session, error)
	Count(ctx context.Context, userID string) (int64, error)
	// CompletedStartTimes returns up to limit start times of completed sessions, newest first.
	CompletedStartTimes(ctx context.Context, userID string, limit int) ([]time.Time, error)
	// Aggregate sums completed sessions overall and per type.
	Aggregate(ctx context.Context, userID string) (Totals, []TypeTotals, error)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Insert(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id, userID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok || stored.UserID != s.UserID {
		return ErrNotFound
	}
	if stored.Completed {
		return ErrAlreadyCompleted
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) ListRecent(_ context.Context, userID string, skip, limit int) ([]Session, error) {
	owned := m.owned(userID, false)
	if skip < 0 || limit <= 0 || skip >= len(owned) {
		return []Session{}, nil
	}
	end := min(skip+min(limit, len(owned)), len(owned))
	return owned[skip:end], nil
}

func (m *MemoryStore) Count(_ context.Context, userID string) (int64, error) {
	return int64(len(m.owned(userID, false))), nil
}

func (m *MemoryStore) CompletedStartTimes(_ context.Context, userID string, limit int) ([]time.Time, error) {
	owned := m.owned(userID, true)
	if len(owned) > limit {
		owned = owned[:limit]
	}
	times := make([]time.Time, len(owned))
	for i, s := range owned {
		times[i] = s.StartTime
	}
	return times, nil
}

func (m *MemoryStore) Aggregate(_ context.Context, userID string) (Totals, []TypeTotals, error) {
	var totals Totals
	byType := make(map[Type]*TypeTotals)
	order := make([]Type, 0, len(Types))

	for _, s := range m.owned(userID, true) {
		totals.Count++
		totals.DurationSeconds += s.Duration
		if s.FocusScore != nil {
			totals.FocusSum += *s.FocusScore
			totals.FocusCount++
		}
		tt, ok := byType[s.SessionType]
		if !ok {
			tt = &TypeTotals{Type: s.SessionType}
			byType[s.SessionType] = tt
			order = append(order, s.SessionType)
		}
		tt.Count++
		tt.DurationSeconds += s.Duration
	}

	perType := make([]TypeTotals, 0, len(order))
	for _, t := range order {
		perType = append(perType, *byType[t])
	}
	return totals, perType, nil
}

// owned returns the user's sessions sorted by start time descending.
func (m *MemoryStore) owned(userID string, completedOnly bool) []Session {
	m.mu.RLock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if s.UserID != userID || (completedOnly && !s.Completed) {
			continue
		}
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
