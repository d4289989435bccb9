package emotion

import (
	"math"
	"strings"

	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
)

// Decision 给出文本情绪识别结果。
type Decision struct {
	Mood       meditation.Mood
	Score      int
	Confidence float64
}

var keywordBuckets = map[meditation.Mood][]string{
	meditation.Excited: {
		"期待", "激动", "太酷了", "惊喜", "哇塞", "can't wait", "excited", "thrilled", "pumped",
		"hype", "热血", "兴奋", "给力", "wow", "太妙了",
	},
	meditation.Happy: {
		"开心", "高兴", "喜悦", "快乐", "太好了", "太棒了", "哈哈", "amazing", "awesome", "great",
		"grateful", "thankful", "happy", "glad", "joy", "love", "喜欢", "满意", "感恩",
	},
	meditation.Calm: {
		"平静", "放松", "安心", "宁静", "舒服", "calm", "relaxed", "peaceful", "serene", "at ease",
		"grounded", "centered", "content", "轻松",
	},
	meditation.Tired: {
		"累", "疲惫", "困", "没精神", "乏", "tired", "exhausted", "sleepy", "drained", "fatigued",
		"worn out", "burned out", "burnt out", "no energy", "熬夜",
	},
	meditation.Stressed: {
		"压力", "忙", "崩溃", "deadline", "赶工", "stressed", "overwhelmed", "pressure", "swamped",
		"too much", "busy", "tense", "喘不过气",
	},
	meditation.Anxious: {
		"焦虑", "担心", "紧张", "害怕", "不安", "慌", "anxious", "worried", "nervous", "panic",
		"scared", "afraid", "uneasy", "restless", "on edge",
	},
	meditation.Sad: {
		"难过", "伤心", "失落", "沮丧", "悲伤", "哭", "痛苦", "寂寞", "孤单", "失望", "心碎", "低落",
		"unhappy", "sad", "cry", "depressed", "lonely", "upset", "hurt", "sorrow", "down",
	},
	meditation.Angry: {
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "怒火", "抓狂", "气炸",
		"angry", "furious", "rage", "mad", "annoyed", "pissed", "frustrated", "irritated",
	},
}

// scanOrder breaks ties: the more specific negative moods come first.
var scanOrder = []meditation.Mood{
	meditation.Angry, meditation.Sad, meditation.Anxious, meditation.Stressed,
	meditation.Tired, meditation.Excited, meditation.Happy, meditation.Calm,
}

const keywordWeight = 3

// Analyze 根据签到文本推断情绪，没有明显信号时返回 neutral。
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Mood: meditation.Neutral, Confidence: 0.3}
	}

	scores := make(map[meditation.Mood]int)
	for mood, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, strings.ToLower(word)) {
				scores[mood] += keywordWeight
			}
		}
	}

	// 感叹号只放大已有的积极情绪
	if exclamations := strings.Count(text, "!") + strings.Count(text, "！"); exclamations > 0 {
		if scores[meditation.Happy] > 0 || scores[meditation.Excited] > 0 {
			scores[meditation.Excited] += exclamations * 2
		}
	}

	best := meditation.Neutral
	bestScore := 0
	for _, mood := range scanOrder {
		if s := scores[mood]; s > bestScore {
			best, bestScore = mood, s
		}
	}
	if bestScore == 0 {
		return Decision{Mood: meditation.Neutral, Confidence: 0.3}
	}

	confidence := math.Min(0.9, 0.4+float64(bestScore)*0.05)
	return Decision{Mood: best, Score: bestScore, Confidence: math.Round(confidence*100) / 100}
}
