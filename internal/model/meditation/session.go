package meditation

import "time"

// Type is a meditation practice type.
type Type string

const (
	QuickCalm        Type = "quick-calm"
	DeepFocus        Type = "deep-focus"
	SleepPreparation Type = "sleep-preparation"
	AnxietyRelief    Type = "anxiety-relief"
	EnergyBoost      Type = "energy-boost"
	MindfulBreathing Type = "mindful-breathing"
	BodyScan         Type = "body-scan"
	LovingKindness   Type = "loving-kindness"
)

// Types lists every practice type in declaration order.
var Types = []Type{
	QuickCalm, DeepFocus, SleepPreparation, AnxietyRelief,
	EnergyBoost, MindfulBreathing, BodyScan, LovingKindness,
}

// Mood is a self-reported or detected mood label.
type Mood string

const (
	Excited  Mood = "excited"
	Happy    Mood = "happy"
	Calm     Mood = "calm"
	Neutral  Mood = "neutral"
	Tired    Mood = "tired"
	Stressed Mood = "stressed"
	Anxious  Mood = "anxious"
	Sad      Mood = "sad"
	Angry    Mood = "angry"
)

// Moods lists every mood from lowest to highest rank.
var Moods = []Mood{Angry, Sad, Anxious, Stressed, Tired, Neutral, Calm, Happy, Excited}

type Intensity string

const (
	Light   Intensity = "light"
	Medium  Intensity = "medium"
	Intense Intensity = "intense"
)

// Environment describes where a session took place.
type Environment struct {
	Location   string `json:"location" bson:"location"`
	NoiseLevel string `json:"noiseLevel" bson:"noise_level"`
	Lighting   string `json:"lighting" bson:"lighting"`
}

// DefaultEnvironment matches a typical at-home evening session.
func DefaultEnvironment() Environment {
	return Environment{Location: "home", NoiseLevel: "quiet", Lighting: "dim"}
}

const (
	MinDuration    = 60
	MaxDuration    = 7200
	MaxTitleLength = 100
	MaxNotesLength = 1000
)

// Session is one meditation practice attempt, from start to completion.
type Session struct {
	ID              string      `json:"id" bson:"_id"`
	UserID          string      `json:"userId" bson:"user_id"`
	SessionType     Type        `json:"sessionType" bson:"session_type"`
	Title           string      `json:"title" bson:"title"`
	Duration        int         `json:"duration" bson:"duration"`
	StartTime       time.Time   `json:"startTime" bson:"start_time"`
	EndTime         *time.Time  `json:"endTime,omitempty" bson:"end_time,omitempty"`
	Completed       bool        `json:"completed" bson:"completed"`
	MoodBefore      Mood        `json:"moodBefore" bson:"mood_before"`
	MoodAfter       Mood        `json:"moodAfter,omitempty" bson:"mood_after,omitempty"`
	MoodImprovement int         `json:"moodImprovement" bson:"mood_improvement"`
	Notes           string      `json:"notes,omitempty" bson:"notes,omitempty"`
	Intensity       Intensity   `json:"intensity" bson:"intensity"`
	Tags            []string    `json:"tags,omitempty" bson:"tags,omitempty"`
	Interruptions   int         `json:"interruptions" bson:"interruptions"`
	FocusScore      *int        `json:"focusScore,omitempty" bson:"focus_score,omitempty"`
	Environment     Environment `json:"environment" bson:"environment"`
	CreatedAt       time.Time   `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time   `json:"updatedAt" bson:"updated_at"`
}

// Clone returns a deep copy so stores never share pointers with callers.
func (s Session) Clone() Session {
	out := s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.FocusScore != nil {
		score := *s.FocusScore
		out.FocusScore = &score
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	return out
}
