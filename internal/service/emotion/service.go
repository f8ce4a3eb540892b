package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/moodmic/backend/internal/analysis/emotion"
)

// Config 控制情绪分析服务的行为。
type Config struct {
	Enabled bool
}

// invoker 是编译后的 eino 链路中情绪分析需要的部分。
type invoker interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (*schema.Message, error)
}

// Service 使用大模型对转写文本进行情绪分类，并在必要时回退到关键词规则。
type Service struct {
	classifier invoker
	fallback   func(transcription string) analysis.Decision
}

// NewService 创建情绪分析服务。chatModel 为 nil 或未启用时只使用关键词规则。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	svc := &Service{fallback: analysis.Detect}
	if !cfg.Enabled || chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(emotionSystemPrompt),
		schema.UserMessage(emotionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回是否使用大模型分类。
func (s *Service) Enabled() bool {
	return s != nil && s.classifier != nil
}

// Classify 推断一段转写文本的情绪。
func (s *Service) Classify(ctx context.Context, transcription string) analysis.Decision {
	text := strings.TrimSpace(transcription)
	if !s.Enabled() || text == "" {
		return s.fallback(text)
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"transcription": text})
	if err != nil {
		log.Printf("[emotion] classifier invoke failed, use fallback: %v", err)
		return s.fallback(text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallback(text)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[emotion] classifier output parse failed, use fallback: %v", err)
		return s.fallback(text)
	}

	label, ok := analysis.Parse(result.Emotion)
	if !ok {
		log.Printf("[emotion] classifier returned unknown label %q", result.Emotion)
		return s.fallback(text)
	}

	scale := clampScale(result.Scale)
	return analysis.Decision{
		Emotion: label,
		Scale:   scale,
		Score:   int(scale * 2),
	}
}

// parseClassifierOutput 解析大模型返回的 JSON，允许前后带有多余文本。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func clampScale(val float32) float32 {
	if val <= 0 {
		return 3
	}
	if val < 1 {
		return 1
	}
	if val > 5 {
		return 5
	}
	return val
}

type classifierPayload struct {
	Emotion string  `json:"emotion"`
	Scale   float32 `json:"scale"`
}

const emotionSystemPrompt = "You classify the emotion of a short spoken utterance. " +
	"Reply with a single JSON object and nothing else: " +
	`{{"emotion": one of neutral/happy/sad/angry/excited/anxious/calm, "scale": number between 1 and 5}}`

const emotionUserPrompt = "Utterance:\n{transcription}"
