package emotion

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	analysis "github.com/zhouzirui/mindsync/backend/internal/analysis/emotion"
	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/metrics"
	"github.com/zhouzirui/mindsync/backend/internal/model/emotion"
	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/service/vision"
	"github.com/zhouzirui/mindsync/backend/internal/validation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Detector reads a mood from a face image.
type Detector interface {
	Enabled() bool
	DetectEmotion(ctx context.Context, image []byte) (vision.Result, error)
}

// Options configure the emotion service. Nil detector or classifier disables that path.
type Options struct {
	Detector   Detector
	Classifier Classifier
	Now        func() time.Time
}

// Service 负责图片与文字两种情绪采集。
type Service struct {
	store      emotion.Store
	detector   Detector
	classifier Classifier
	now        func() time.Time
}

func NewService(store emotion.Store, opts Options) *Service {
	s := &Service{
		store:      store,
		detector:   opts.Detector,
		classifier: opts.Classifier,
		now:        opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type ContextInput struct {
	Location  string `json:"location" validate:"max=100"`
	Activity  string `json:"activity" validate:"max=100"`
	TimeOfDay string `json:"timeOfDay" validate:"omitempty,oneof=morning afternoon evening night"`
}

func (c ContextInput) toModel() emotion.Context {
	return emotion.Context{
		Location:  strings.TrimSpace(c.Location),
		Activity:  strings.TrimSpace(c.Activity),
		TimeOfDay: c.TimeOfDay,
	}
}

type ImageInput struct {
	Image   []byte       `json:"-"`
	Context ContextInput `json:"context"`
}

type CheckInInput struct {
	Text    string       `json:"text" validate:"required,max=1000"`
	Context ContextInput `json:"context"`
}

var visionMoods = map[string]meditation.Mood{
	vision.Joy:      meditation.Happy,
	vision.Sorrow:   meditation.Sad,
	vision.Anger:    meditation.Angry,
	vision.Surprise: meditation.Excited,
	vision.Neutral:  meditation.Neutral,
}

type mockReading struct {
	mood       meditation.Mood
	confidence float64
}

// mockReadings stand in for face detection when Vision is unavailable.
var mockReadings = []mockReading{
	{meditation.Happy, 0.85},
	{meditation.Calm, 0.78},
	{meditation.Excited, 0.72},
	{meditation.Neutral, 0.65},
	{meditation.Sad, 0.58},
	{meditation.Angry, 0.45},
}

// AnalyzeImage reads the mood from a face image. Without a working Vision
// client the result is a mock reading chosen by the image hash, so the same
// image always yields the same mood.
func (s *Service) AnalyzeImage(ctx context.Context, userID string, in ImageInput) (emotion.Record, error) {
	if len(in.Image) == 0 {
		return emotion.Record{}, apperr.Validation("image is required")
	}
	if err := validation.Struct(in); err != nil {
		return emotion.Record{}, err
	}

	record := emotion.Record{Context: in.Context.toModel()}
	if s.detector != nil && s.detector.Enabled() {
		res, err := s.detector.DetectEmotion(ctx, in.Image)
		if err == nil {
			record.Emotion = visionMoods[res.Label]
			record.Confidence = res.Confidence
			record.Source = emotion.SourceVision
			record.AllEmotions = res.All
		} else {
			logging.Ctx(ctx).Warn().Err(err).Msg("[emotion] vision detection failed, use mock reading")
		}
	}
	if record.Source == "" {
		reading := mockFor(in.Image)
		record.Emotion = reading.mood
		record.Confidence = reading.confidence
		record.Source = emotion.SourceMock
	}

	return s.save(ctx, userID, record)
}

func mockFor(image []byte) mockReading {
	sum := sha256.Sum256(image)
	return mockReadings[binary.BigEndian.Uint32(sum[:4])%uint32(len(mockReadings))]
}

// CheckIn classifies a free-text mood check-in.
func (s *Service) CheckIn(ctx context.Context, userID string, in CheckInInput) (emotion.Record, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return emotion.Record{}, err
	}

	record := emotion.Record{Note: in.Text, Context: in.Context.toModel()}
	if s.classifier != nil {
		c, err := s.classifier.Classify(ctx, in.Text)
		if err == nil {
			record.Emotion = c.Mood
			record.Confidence = c.Confidence
			record.Source = emotion.SourceLLM
		} else {
			logging.Ctx(ctx).Warn().Err(err).Msg("[emotion] classifier failed, use keyword analyzer")
		}
	}
	if record.Source == "" {
		d := analysis.Analyze(in.Text)
		record.Emotion = d.Mood
		record.Confidence = d.Confidence
		record.Source = emotion.SourceHeuristic
	}

	return s.save(ctx, userID, record)
}

// History returns recent records, newest first. limit 0 means the default.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]emotion.Record, error) {
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, apperr.Validation("limit must be between 1 and 100")
	}
	records, err := s.store.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Storage("failed to load emotion history", err)
	}
	if records == nil {
		records = []emotion.Record{}
	}
	return records, nil
}

func (s *Service) save(ctx context.Context, userID string, r emotion.Record) (emotion.Record, error) {
	r.ID = uuid.NewString()
	r.UserID = userID
	r.Metrics = MetricsFor(r.Emotion, r.Confidence)
	r.CreatedAt = s.now().UTC()

	if err := s.store.Insert(ctx, r); err != nil {
		return emotion.Record{}, apperr.Storage("failed to save emotion record", err)
	}

	metrics.RecordEmotionAnalysis(string(r.Source))
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("emotion", string(r.Emotion)).
		Str("source", string(r.Source)).Msg("[emotion] reading recorded")
	return r, nil
}

// MetricsFor derives wellbeing indicators: stress falls and focus rises with
// detection confidence, energy follows the mood rank.
func MetricsFor(mood meditation.Mood, confidence float64) emotion.Metrics {
	return emotion.Metrics{
		Stress: int(math.Round(100 - confidence*100)),
		Focus:  int(math.Round(confidence * 100)),
		Energy: int(math.Round(float64(meditation.Rank(mood)) * 100 / float64(len(meditation.Moods)))),
	}
}
