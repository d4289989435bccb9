package meditation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/metrics"
	model "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/validation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

// ErrAggregateNotUpdated marks a completion whose session write succeeded but
// whose user aggregate write did not. The session stays completed.
var ErrAggregateNotUpdated = errors.New("session completed but user aggregate not updated")

// ErrStreakNotRecorded marks a completion whose session and aggregate writes
// succeeded but whose streak write did not.
var ErrStreakNotRecorded = errors.New("session completed but streak not recorded")

// Notifier receives completion events, typically the real-time hub.
type Notifier interface {
	SessionCompleted(ctx context.Context, userID string, session model.View, stats Stats)
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	Location *time.Location
	StatsTTL time.Duration
	Now      func() time.Time
	Notifier Notifier
}

// Service is the session ledger and analytics engine.
type Service struct {
	sessions model.Store
	users    user.Store
	cache    *ttlcache.Cache[string, Stats]
	loc      *time.Location
	now      func() time.Time
	notifier Notifier
}

// NewService wires the engine on top of the given stores.
func NewService(sessions model.Store, users user.Store, opts Options) *Service {
	s := &Service{
		sessions: sessions,
		users:    users,
		loc:      opts.Location,
		now:      opts.Now,
		notifier: opts.Notifier,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.StatsTTL > 0 {
		s.cache = ttlcache.New(
			ttlcache.WithTTL[string, Stats](opts.StatsTTL),
			ttlcache.WithDisableTouchOnHit[string, Stats](),
		)
		go s.cache.Start()
	}
	return s
}

// SetNotifier attaches the completion notifier after construction.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Close stops the stats cache janitor.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Stop()
	}
}

// EnvironmentInput describes where a session takes place.
type EnvironmentInput struct {
	Location   string `json:"location" validate:"omitempty,oneof=home office nature commute other"`
	NoiseLevel string `json:"noiseLevel" validate:"omitempty,oneof=silent quiet moderate noisy"`
	Lighting   string `json:"lighting" validate:"omitempty,oneof=dark dim normal bright"`
}

// StartInput carries the parameters of a new session.
type StartInput struct {
	SessionType model.Type        `json:"sessionType" validate:"required,oneof=quick-calm deep-focus sleep-preparation anxiety-relief energy-boost mindful-breathing body-scan loving-kindness"`
	Title       string            `json:"title" validate:"required,max=100"`
	Duration    int               `json:"duration" validate:"min=60,max=7200"`
	MoodBefore  model.Mood        `json:"moodBefore" validate:"omitempty,oneof=excited happy calm neutral tired stressed anxious sad angry"`
	Intensity   model.Intensity   `json:"intensity" validate:"omitempty,oneof=light medium intense"`
	Tags        []string          `json:"tags" validate:"max=10,dive,max=30"`
	Environment *EnvironmentInput `json:"environment"`
}

// CompleteInput carries the parameters of a completion.
type CompleteInput struct {
	MoodAfter     model.Mood `json:"moodAfter" validate:"required,oneof=excited happy calm neutral tired stressed anxious sad angry"`
	FocusScore    *int       `json:"focusScore" validate:"omitempty,min=1,max=10"`
	Notes         *string    `json:"notes" validate:"omitempty,max=1000"`
	Interruptions *int       `json:"interruptions" validate:"omitempty,min=0"`
}

// StartSession 创建一个新的冥想会话，不修改用户统计
func (s *Service) StartSession(ctx context.Context, userID string, in StartInput) (model.Session, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return model.Session{}, err
	}
	if in.Environment != nil {
		if err := validation.Struct(in.Environment); err != nil {
			return model.Session{}, err
		}
	}

	now := s.now().UTC()
	session := model.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionType: in.SessionType,
		Title:       in.Title,
		Duration:    in.Duration,
		StartTime:   now,
		MoodBefore:  in.MoodBefore,
		Intensity:   in.Intensity,
		Tags:        in.Tags,
		Environment: model.DefaultEnvironment(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if session.MoodBefore == "" {
		session.MoodBefore = model.Neutral
	}
	if session.Intensity == "" {
		session.Intensity = model.Medium
	}
	if env := in.Environment; env != nil {
		if env.Location != "" {
			session.Environment.Location = env.Location
		}
		if env.NoiseLevel != "" {
			session.Environment.NoiseLevel = env.NoiseLevel
		}
		if env.Lighting != "" {
			session.Environment.Lighting = env.Lighting
		}
	}

	if err := s.sessions.Insert(ctx, session); err != nil {
		return model.Session{}, apperr.Storage("failed to create session", err)
	}

	metrics.RecordSessionStarted(string(session.SessionType))
	logging.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Str("type", string(session.SessionType)).
		Msg("[meditation] session started")
	return session, nil
}

// CompleteSession finalizes a session and bumps the owner's aggregate.
//
// When the session write succeeds but the aggregate increment fails, the
// completed session is returned together with a storage error wrapping
// ErrAggregateNotUpdated. When only the streak write fails the error wraps
// ErrStreakNotRecorded instead. The streak is a plain set, so concurrent
// completions of one user leave the last writer's value.
func (s *Service) CompleteSession(ctx context.Context, sessionID, userID string, in CompleteInput) (model.Session, error) {
	if err := validation.Struct(in); err != nil {
		return model.Session{}, err
	}

	session, err := s.findOwned(ctx, sessionID, userID)
	if err != nil {
		return model.Session{}, err
	}
	if session.Completed {
		return model.Session{}, apperr.InvalidState("session already completed")
	}

	now := s.now().UTC()
	if now.Before(session.StartTime) {
		now = session.StartTime
	}
	session.EndTime = &now
	session.Completed = true
	session.MoodAfter = in.MoodAfter
	session.MoodImprovement = model.MoodImprovement(session.MoodBefore, session.MoodAfter)
	if in.FocusScore != nil {
		score := *in.FocusScore
		session.FocusScore = &score
	}
	if in.Notes != nil {
		session.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Interruptions != nil {
		session.Interruptions = *in.Interruptions
	}
	session.UpdatedAt = now

	if err := s.sessions.MarkCompleted(ctx, session); err != nil {
		switch {
		case errors.Is(err, model.ErrAlreadyCompleted):
			return model.Session{}, apperr.InvalidState("session already completed")
		case errors.Is(err, model.ErrNotFound):
			return model.Session{}, apperr.NotFound("session not found")
		default:
			return model.Session{}, apperr.Storage("failed to complete session", err)
		}
	}
	metrics.RecordSessionCompleted(string(session.SessionType))
	s.invalidateStats(userID)

	log := logging.Ctx(ctx)
	if err := s.users.IncrementStats(ctx, userID, model.DurationMinutes(session.Duration), 1, now); err != nil {
		metrics.RecordAggregateFailure()
		log.Error().Err(err).Str("session_id", session.ID).Str("user_id", userID).
			Msg("[meditation] session completed but user aggregate not updated")
		return session, apperr.Storage("session completed but statistics were not updated",
			fmt.Errorf("%w: %w", ErrAggregateNotUpdated, err))
	}

	streak, err := s.GetCurrentStreak(ctx, userID)
	if err == nil {
		err = s.users.RecordStreak(ctx, userID, streak)
	}
	if err != nil {
		metrics.RecordStreakFailure()
		log.Error().Err(err).Str("user_id", userID).Msg("[meditation] failed to record streak")
		return session, apperr.Storage("session completed but streak was not updated",
			fmt.Errorf("%w: %w", ErrStreakNotRecorded, err))
	}

	log.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Int("mood_improvement", session.MoodImprovement).
		Int("streak", streak).
		Msg("[meditation] session completed")

	s.notify(ctx, userID, session)
	return session, nil
}

// GetSession returns one of the user's sessions.
func (s *Service) GetSession(ctx context.Context, sessionID, userID string) (model.Session, error) {
	return s.findOwned(ctx, sessionID, userID)
}

// CalculateEffectiveness scores a completed session; nil when not completed.
func (s *Service) CalculateEffectiveness(session model.Session) *int {
	return model.Effectiveness(session)
}

func (s *Service) findOwned(ctx context.Context, sessionID, userID string) (model.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, apperr.NotFound("session not found")
		}
		return model.Session{}, apperr.Storage("failed to load session", err)
	}
	return session, nil
}

func (s *Service) notify(ctx context.Context, userID string, session model.Session) {
	if s.notifier == nil {
		return
	}
	stats, err := s.GetUserStats(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).
			Msg("[meditation] skipping completion notification")
		return
	}
	s.notifier.SessionCompleted(ctx, userID, model.NewView(session), stats)
}
