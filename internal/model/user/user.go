package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Preferences are user-tunable settings.
type Preferences struct {
	MeditationStyle      string `json:"meditationStyle,omitempty" bson:"meditation_style,omitempty"`
	NotificationsEnabled bool   `json:"notificationsEnabled" bson:"notifications_enabled"`
	Theme                string `json:"theme,omitempty" bson:"theme,omitempty"`
}

// Profile holds free-form profile data.
type Profile struct {
	Bio         string      `json:"bio,omitempty" bson:"bio,omitempty"`
	Goals       []string    `json:"goals,omitempty" bson:"goals,omitempty"`
	Preferences Preferences `json:"preferences" bson:"preferences"`
}

// Stats is the running meditation aggregate, mutated only by atomic increments.
type Stats struct {
	TotalMeditationMinutes int `json:"totalMeditationMinutes" bson:"total_meditation_minutes"`
	CompletedSessions      int `json:"completedSessions" bson:"completed_sessions"`
	CurrentStreak          int `json:"currentStreak" bson:"current_streak"`
	LongestStreak          int `json:"longestStreak" bson:"longest_streak"`
}

// User is an account.
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Name         string     `json:"name" bson:"name"`
	Email        string     `json:"email,omitempty" bson:"email,omitempty"`
	PasswordHash string     `json:"-" bson:"password_hash,omitempty"`
	IsDemo       bool       `json:"isDemo" bson:"is_demo"`
	Profile      Profile    `json:"profile" bson:"profile"`
	Stats        Stats      `json:"stats" bson:"stats"`
	LastActive   *time.Time `json:"lastActive,omitempty" bson:"last_active,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// IncrementStats atomically adds to the aggregate and sets the last-active time.
	IncrementStats(ctx context.Context, id string, minutes, sessions int, at time.Time) error
	// RecordStreak sets the current streak and raises the longest streak if exceeded.
	RecordStreak(ctx context.Context, id string, current int) error
	UpdatePreferences(ctx context.Context, id string, prefs Preferences) (User, error)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (m *MemoryStore) Create(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Email != "" {
		for _, existing := range m.users {
			if existing.Email == u.Email {
				return ErrEmailTaken
			}
		}
	}
	m.users[u.ID] = clone(u)
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if email != "" && u.Email == email {
			return clone(u), nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemoryStore) IncrementStats(_ context.Context, id string, minutes, sessions int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Stats.TotalMeditationMinutes += minutes
	u.Stats.CompletedSessions += sessions
	u.LastActive = &at
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m *MemoryStore) RecordStreak(_ context.Context, id string, current int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Stats.CurrentStreak = current
	u.Stats.LongestStreak = max(u.Stats.LongestStreak, current)
	m.users[id] = u
	return nil
}

func (m *MemoryStore) UpdatePreferences(_ context.Context, id string, prefs Preferences) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Profile.Preferences = prefs
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return clone(u), nil
}

func clone(u User) User {
	out := u
	if u.LastActive != nil {
		at := *u.LastActive
		out.LastActive = &at
	}
	if u.Profile.Goals != nil {
		out.Profile.Goals = append([]string(nil), u.Profile.Goals...)
	}
	return out
}
