package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
)

func TestAnalyze(t *testing.T) {
	cases := []struct {
		name string
		text string
		want meditation.Mood
	}{
		{"chinese sadness", "我今天很难过", meditation.Sad},
		{"excitement with exclamations", "So excited!!! can't wait", meditation.Excited},
		{"tiredness", "Feeling tired and exhausted after work", meditation.Tired},
		{"tie prefers anxious over stressed", "I'm worried and stressed", meditation.Anxious},
		{"calm", "平静又放松", meditation.Calm},
		{"no signal", "the weather report", meditation.Neutral},
		{"empty", "   ", meditation.Neutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Analyze(tc.text)
			assert.Equal(t, tc.want, got.Mood)
			assert.GreaterOrEqual(t, got.Confidence, 0.3)
			assert.LessOrEqual(t, got.Confidence, 0.9)
		})
	}
}

func TestAnalyzeExclamationsOnlyBoostPositiveMoods(t *testing.T) {
	got := Analyze("I am so angry!!!")
	assert.Equal(t, meditation.Angry, got.Mood)
	assert.Equal(t, keywordWeight, got.Score)
}

func TestAnalyzeConfidenceCaps(t *testing.T) {
	got := Analyze("So excited!!! can't wait")
	assert.Equal(t, 0.9, got.Confidence)

	single := Analyze("我今天很难过")
	assert.Equal(t, 0.55, single.Confidence)
}
