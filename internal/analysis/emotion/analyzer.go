package emotion

import (
	"math"
	"strings"
)

// Label 表示分析服务返回的情绪标签。
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Excited Label = "excited"
	Anxious Label = "anxious"
	Calm    Label = "calm"
)

// Labels 按固定顺序列出全部标签
var Labels = []Label{Neutral, Happy, Sad, Angry, Excited, Anxious, Calm}

// Decision 给出情绪识别结果以及情绪强度。
type Decision struct {
	Emotion Label
	Scale   float32
	Score   int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "good news", "thanks", "thank you", "love", "awesome", "amazing",
		"wonderful", "delighted", "pleased", "lol", "haha", "开心", "高兴", "快乐", "喜欢", "满意", "太好了",
	},
	Sad: {
		"sad", "unhappy", "cry", "crying", "depressed", "lonely", "miss ", "lost", "hurt", "upset",
		"disappointed", "heartbroken", "down", "难过", "伤心", "失落", "沮丧", "孤单", "失望",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "hate", "pissed", "frustrated", "fed up", "rage",
		"unfair", "sick of", "生气", "愤怒", "火大", "受够了", "烦死",
	},
	Excited: {
		"excited", "can't wait", "cannot wait", "wow", "incredible", "unbelievable", "thrilled",
		"finally", "let's go", "hype", "激动", "期待", "惊喜", "太酷了",
	},
	Anxious: {
		"worried", "anxious", "nervous", "scared", "afraid", "stressed", "panic", "overwhelmed",
		"what if", "deadline", "exam", "interview", "担心", "紧张", "害怕", "焦虑", "压力",
	},
	Calm: {
		"calm", "relaxed", "peaceful", "fine", "okay", "content", "rested", "quiet", "slowly",
		"平静", "放松", "安心", "还好",
	},
}

var punctuationBoost = map[Label]int{
	Happy:   2,
	Excited: 3,
}

// Detect 根据一段转写文本推断说话人的情绪。
func Detect(transcription string) Decision {
	best := scoreText(transcription)
	if best.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3, Score: 0}
	}

	scale := 2 + float32(best.Score)/4 // 基础为2，强度随得分提升
	switch best.Emotion {
	case Excited:
		scale += 1
	case Calm:
		scale = float32(math.Min(3.0, float64(scale)))
	}

	if scale < 1 {
		scale = 1
	}
	if scale > 5 {
		scale = 5
	}

	return Decision{Emotion: best.Emotion, Scale: scale, Score: best.Score}
}

// Parse 将外部文本转换为已知标签。
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == normalized {
			return label, true
		}
	}
	return "", false
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 0 {
		scores[Excited] += exclamations * punctuationBoost[Excited]
		if exclamations == 1 {
			scores[Happy] += punctuationBoost[Happy]
		}
	}

	// 按固定顺序遍历，保证同分时结果稳定
	bestLabel := Neutral
	bestScore := 0
	for _, label := range Labels {
		if s := scores[label]; s > bestScore {
			bestScore = s
			bestLabel = label
		}
	}

	return Decision{Emotion: bestLabel, Score: bestScore}
}
