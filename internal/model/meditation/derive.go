package meditation

import "math"

var moodRanks = map[Mood]int{
	Angry:    1,
	Sad:      2,
	Anxious:  3,
	Stressed: 4,
	Tired:    5,
	Neutral:  6,
	Calm:     7,
	Happy:    8,
	Excited:  9,
}

// Rank returns the ordinal rank of a mood, or 0 for an unknown label.
func Rank(m Mood) int {
	return moodRanks[m]
}

// ValidMood reports whether m is one of the known mood labels.
func ValidMood(m Mood) bool {
	_, ok := moodRanks[m]
	return ok
}

// ValidType reports whether t is one of the known practice types.
func ValidType(t Type) bool {
	for _, known := range Types {
		if known == t {
			return true
		}
	}
	return false
}

// MoodImprovement classifies the change between two moods:
// 2 much better, 1 better, 0 same, -1 worse.
func MoodImprovement(before, after Mood) int {
	b, a := Rank(before), Rank(after)
	switch {
	case a > b+2:
		return 2
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// DurationMinutes is the planned duration rounded to whole minutes.
func DurationMinutes(durationSeconds int) int {
	return int(math.Round(float64(durationSeconds) / 60))
}

const (
	StatusCompleted  = "completed"
	StatusInProgress = "in-progress"
)

// Status derives the lifecycle status from the stored fields.
func Status(s Session) string {
	if s.Completed {
		return StatusCompleted
	}
	return StatusInProgress
}

// Effectiveness scores a completed session from 0 to 100. It returns nil for
// sessions that are not completed.
func Effectiveness(s Session) *int {
	if !s.Completed {
		return nil
	}

	score := 50

	if minutes := DurationMinutes(s.Duration); minutes >= 15 && minutes <= 30 {
		score += 20
	}

	if s.FocusScore != nil {
		switch {
		case *s.FocusScore >= 7:
			score += 15
		case *s.FocusScore >= 5:
			score += 10
		}
	}

	switch s.MoodImprovement {
	case 2:
		score += 15
	case 1:
		score += 10
	}

	if s.Environment.NoiseLevel == "quiet" || s.Environment.NoiseLevel == "silent" {
		score += 10
	}

	score -= 5 * s.Interruptions

	score = max(0, min(100, score))
	return &score
}

// View is a session enriched with the fields derived on read.
type View struct {
	Session
	DurationMinutes int    `json:"durationMinutes"`
	Status          string `json:"status"`
	Effectiveness   *int   `json:"effectiveness"`
}

// NewView derives the computed fields for s.
func NewView(s Session) View {
	return View{
		Session:         s,
		DurationMinutes: DurationMinutes(s.Duration),
		Status:          Status(s),
		Effectiveness:   Effectiveness(s),
	}
}

// NewViews maps NewView over a slice.
func NewViews(sessions []Session) []View {
	views := make([]View, len(sessions))
	for i, s := range sessions {
		views[i] = NewView(s)
	}
	return views
}
