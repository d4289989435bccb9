package meditation

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	model "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

// streakWindow bounds how many completed sessions the streak walk looks at.
const streakWindow = 30

// MaxPageLimit caps the page size of GetRecentSessions.
const MaxPageLimit = 100

// TypeStat is one entry of the per-type distribution.
type TypeStat struct {
	Type         model.Type `json:"type"`
	Count        int        `json:"count"`
	TotalMinutes float64    `json:"totalMinutes"`
}

// Stats aggregates a user's completed sessions.
type Stats struct {
	TotalSessions     int        `json:"totalSessions"`
	CompletedSessions int        `json:"completedSessions"`
	TotalMinutes      float64    `json:"totalMinutes"`
	AvgDuration       float64    `json:"avgDuration"`
	AvgFocusScore     float64    `json:"avgFocusScore"`
	TypeDistribution  []TypeStat `json:"typeDistribution"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	FavoriteSession   model.Type `json:"favoriteSession"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Current    int   `json:"current"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// Page is a listing of sessions with derived fields.
type Page struct {
	Sessions   []model.View `json:"sessions"`
	Pagination Pagination   `json:"pagination"`
}

// GetCurrentStreak counts consecutive calendar days, ending today, with at
// least one completed session.
func (s *Service) GetCurrentStreak(ctx context.Context, userID string) (int, error) {
	starts, err := s.sessions.CompletedStartTimes(ctx, userID, streakWindow)
	if err != nil {
		return 0, apperr.Storage("failed to load sessions", err)
	}
	return streakFrom(starts, s.now(), s.loc), nil
}

func streakFrom(starts []time.Time, now time.Time, loc *time.Location) int {
	days := make(map[time.Time]struct{}, len(starts))
	for _, t := range starts {
		days[dayOf(t, loc)] = struct{}{}
	}

	day := dayOf(now, loc)
	streak := 0
	for {
		if _, ok := days[day]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

// dayOf truncates t to local midnight.
func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// GetUserStats aggregates completed sessions. Results are cached per user
// until the TTL lapses or the user completes another session.
func (s *Service) GetUserStats(ctx context.Context, userID string) (Stats, error) {
	if s.cache != nil {
		if item := s.cache.Get(userID); item != nil {
			return cloneStats(item.Value()), nil
		}
	}

	totals, perType, err := s.sessions.Aggregate(ctx, userID)
	if err != nil {
		return Stats{}, apperr.Storage("failed to aggregate sessions", err)
	}
	streak, err := s.GetCurrentStreak(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := buildStats(totals, perType)
	stats.CurrentStreak = streak
	stats.LongestStreak = streak
	if u, err := s.users.FindByID(ctx, userID); err == nil {
		stats.LongestStreak = max(u.Stats.LongestStreak, streak)
	} else {
		logging.Ctx(ctx).Debug().Err(err).Str("user_id", userID).
			Msg("[meditation] user aggregate unavailable for stats")
	}

	if s.cache != nil {
		s.cache.Set(userID, stats, ttlcache.DefaultTTL)
	}
	return cloneStats(stats), nil
}

func buildStats(totals model.Totals, perType []model.TypeTotals) Stats {
	stats := Stats{
		TotalSessions:     totals.Count,
		CompletedSessions: totals.Count,
		TotalMinutes:      round1(float64(totals.DurationSeconds) / 60),
		TypeDistribution:  make([]TypeStat, 0, len(perType)),
		FavoriteSession:   model.QuickCalm,
	}
	if totals.Count > 0 {
		stats.AvgDuration = round1(float64(totals.DurationSeconds) / 60 / float64(totals.Count))
	}
	if totals.FocusCount > 0 {
		stats.AvgFocusScore = round1(float64(totals.FocusSum) / float64(totals.FocusCount))
	}

	for _, tt := range perType {
		stats.TypeDistribution = append(stats.TypeDistribution, TypeStat{
			Type:         tt.Type,
			Count:        tt.Count,
			TotalMinutes: round1(float64(tt.DurationSeconds) / 60),
		})
	}
	sort.SliceStable(stats.TypeDistribution, func(i, j int) bool {
		a, b := stats.TypeDistribution[i], stats.TypeDistribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})
	if len(stats.TypeDistribution) > 0 {
		stats.FavoriteSession = stats.TypeDistribution[0].Type
	}
	return stats
}

func (s *Service) invalidateStats(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}

func cloneStats(st Stats) Stats {
	st.TypeDistribution = append([]TypeStat(nil), st.TypeDistribution...)
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// GetRecentSessions pages through the user's sessions, newest first.
func (s *Service) GetRecentSessions(ctx context.Context, userID string, limit, page int) (Page, error) {
	if limit <= 0 || limit > MaxPageLimit {
		return Page{}, apperr.Validation("limit must be between 1 and 100")
	}
	if page <= 0 {
		return Page{}, apperr.Validation("page must be a positive integer")
	}
	if page-1 > math.MaxInt/limit {
		return Page{}, apperr.Validation("page is out of range")
	}

	skip := (page - 1) * limit
	sessions, err := s.sessions.ListRecent(ctx, userID, skip, limit)
	if err != nil {
		return Page{}, apperr.Storage("failed to list sessions", err)
	}
	total, err := s.sessions.Count(ctx, userID)
	if err != nil {
		return Page{}, apperr.Storage("failed to count sessions", err)
	}

	return Page{
		Sessions:   model.NewViews(sessions),
		Pagination: paginate(page, limit, total),
	}, nil
}

func paginate(page, limit int, total int64) Pagination {
	return Pagination{
		Current:    page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		HasNext:    int64(page)*int64(limit) < total,
		HasPrev:    page > 1,
	}
}
