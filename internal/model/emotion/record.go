package emotion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
)

// Source 记录情绪结果的来源
type Source string

const (
	SourceVision    Source = "vision"
	SourceMock      Source = "mock"
	SourceLLM       Source = "llm"
	SourceHeuristic Source = "heuristic"
)

// Metrics are the wellbeing indicators derived from a detection.
type Metrics struct {
	Stress int `json:"stress" bson:"stress"`
	Focus  int `json:"focus" bson:"focus"`
	Energy int `json:"energy" bson:"energy"`
}

// Context describes the circumstances of a check-in.
type Context struct {
	Location  string `json:"location,omitempty" bson:"location,omitempty"`
	Activity  string `json:"activity,omitempty" bson:"activity,omitempty"`
	TimeOfDay string `json:"timeOfDay,omitempty" bson:"time_of_day,omitempty"`
}

// Record is one persisted emotion detection.
type Record struct {
	ID          string             `json:"id" bson:"_id"`
	UserID      string             `json:"userId" bson:"user_id"`
	Emotion     meditation.Mood    `json:"emotion" bson:"emotion"`
	Confidence  float64            `json:"confidence" bson:"confidence"`
	Source      Source             `json:"source" bson:"source"`
	AllEmotions map[string]float64 `json:"allEmotions,omitempty" bson:"all_emotions,omitempty"`
	Metrics     Metrics            `json:"metrics" bson:"metrics"`
	Note        string             `json:"note,omitempty" bson:"note,omitempty"`
	Context     Context            `json:"context" bson:"context"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
}

// Store persists emotion records.
type Store interface {
	Insert(ctx context.Context, r Record) error
	// ListRecent returns the user's records, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (m *MemoryStore) Insert(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.UserID] = append(m.records[r.UserID], r)
	return nil
}

func (m *MemoryStore) ListRecent(_ context.Context, userID string, limit int) ([]Record, error) {
	m.mu.RLock()
	out := append([]Record(nil), m.records[userID]...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
