package reply

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/moodmic/backend/internal/analysis/emotion"
)

type invoker interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (*schema.Message, error)
}

// Service writes a short empathetic reply to a transcribed utterance.
type Service struct {
	chain invoker
}

// NewService compiles the reply chain. A nil chatModel gives a service that only
// returns canned replies.
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	if chatModel == nil {
		return &Service{}, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}
	return &Service{chain: runnable}, nil
}

// Generate returns a reply for the transcription, falling back to a canned reply
// for the detected emotion when no model is configured or the model fails.
func (s *Service) Generate(ctx context.Context, transcription string, decision emotion.Decision) string {
	if s == nil || s.chain == nil {
		return Canned(decision.Emotion)
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": buildSystemPrompt(decision),
		"query":  transcription,
	})
	if err != nil {
		log.Printf("[reply] chain invoke failed, use canned reply: %v", err)
		return Canned(decision.Emotion)
	}
	content := ""
	if response != nil {
		content = strings.TrimSpace(response.Content)
	}
	if content == "" {
		return Canned(decision.Emotion)
	}

	log.Printf("[reply] generated reply emotion=%s length=%d", decision.Emotion, len(content))
	return content
}

func buildSystemPrompt(decision emotion.Decision) string {
	var builder strings.Builder
	builder.WriteString("You are a warm, concise companion. The user just spoke to you and their words were transcribed. ")
	builder.WriteString("Answer in two or three sentences, in the language the user used.")

	if desc := describeEmotion(decision.Emotion); desc != "" {
		builder.WriteString("\n")
		builder.WriteString(desc)
		builder.WriteString(fmt.Sprintf(" Intensity is about %.1f out of 5.", decision.Scale))
	}
	return builder.String()
}

func describeEmotion(label emotion.Label) string {
	switch label {
	case emotion.Happy:
		return "The user sounds happy; keep the tone light and share the good mood."
	case emotion.Sad:
		return "The user sounds sad; be gentle and comforting."
	case emotion.Angry:
		return "The user sounds angry; stay calm, acknowledge the frustration first."
	case emotion.Excited:
		return "The user sounds excited; match their energy."
	case emotion.Anxious:
		return "The user sounds anxious; be reassuring and offer one concrete next step."
	case emotion.Calm:
		return "The user sounds calm; keep a relaxed, steady tone."
	case emotion.Neutral:
		return "The user sounds neutral; be clear and friendly."
	default:
		return ""
	}
}

var cannedReplies = map[emotion.Label]string{
	emotion.Neutral: "Thanks for sharing that with me. Tell me more whenever you like.",
	emotion.Happy:   "That's lovely to hear! It sounds like things are going well for you.",
	emotion.Sad:     "I'm sorry you're feeling this way. I'm here to listen if you want to talk about it.",
	emotion.Angry:   "That sounds really frustrating. It makes sense that you're upset.",
	emotion.Excited: "That's exciting! I can hear how much this means to you.",
	emotion.Anxious: "That sounds stressful. Let's take it one step at a time.",
	emotion.Calm:    "It sounds like you're in a peaceful place right now. That's good to hear.",
}

// Canned returns the fixed reply used for label when no model is available.
func Canned(label emotion.Label) string {
	if text, ok := cannedReplies[label]; ok {
		return text
	}
	return cannedReplies[emotion.Neutral]
}
