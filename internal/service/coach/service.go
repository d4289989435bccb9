// Package coach writes short post-session reflections.
package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
)

// Reflection sources.
const (
	SourceLLM   = "llm"
	SourceRules = "rules"
)

// SessionReader loads an owned session.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID, userID string) (meditation.Session, error)
}

// Plan is a reflection ready to be generated.
type Plan struct {
	Session     meditation.Session
	Recommended meditation.Type
}

// Reflection is the finished text with its next-session recommendation.
type Reflection struct {
	SessionID   string          `json:"sessionId"`
	Text        string          `json:"text"`
	Recommended meditation.Type `json:"recommendedSessionType"`
	Source      string          `json:"source"`
}

// Service 生成冥想结束后的反馈，未配置大模型时使用规则模板。
type Service struct {
	sessions SessionReader
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the reflection chain. A nil chatModel leaves only the rule-based path.
func NewService(ctx context.Context, sessions SessionReader, chatModel model.ChatModel) (*Service, error) {
	s := &Service{sessions: sessions}
	if chatModel == nil {
		return s, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(coachSystemPrompt),
		schema.UserMessage("{summary}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile coach chain: %w", err)
	}
	s.chain = runnable
	return s, nil
}

// StreamingEnabled reports whether reflections come from the language model.
func (s *Service) StreamingEnabled() bool {
	return s.chain != nil
}

// Recommend picks the next practice for the mood a session ended with.
func Recommend(mood meditation.Mood) meditation.Type {
	switch mood {
	case meditation.Anxious, meditation.Stressed:
		return meditation.AnxietyRelief
	case meditation.Tired:
		return meditation.EnergyBoost
	case meditation.Sad, meditation.Angry:
		return meditation.LovingKindness
	default:
		return meditation.MindfulBreathing
	}
}

// Prepare loads the session. Only completed sessions can be reflected on.
func (s *Service) Prepare(ctx context.Context, sessionID, userID string) (Plan, error) {
	session, err := s.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		return Plan{}, err
	}
	if !session.Completed {
		return Plan{}, apperr.InvalidState("session is not completed yet")
	}
	return Plan{Session: session, Recommended: Recommend(session.MoodAfter)}, nil
}

// Stream generates the reflection, passing each text chunk to emit as it
// arrives. If the model cannot start a stream the rule-based text is emitted
// instead; a failure after streaming has begun is returned.
func (s *Service) Stream(ctx context.Context, plan Plan, emit func(chunk string) error) (Reflection, error) {
	ref := Reflection{SessionID: plan.Session.ID, Recommended: plan.Recommended}

	if s.chain != nil {
		stream, err := s.chain.Stream(ctx, map[string]any{"summary": summarize(plan)})
		if err == nil {
			text, err := drain(stream, emit)
			if err != nil {
				return Reflection{}, err
			}
			ref.Text, ref.Source = text, SourceLLM
			return ref, nil
		}
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", plan.Session.ID).
			Msg("[coach] stream start failed, use rule reflection")
	}

	ref.Text, ref.Source = ruleReflection(plan), SourceRules
	if err := emit(ref.Text); err != nil {
		return Reflection{}, err
	}
	return ref, nil
}

func drain(stream *schema.StreamReader[*schema.Message], emit func(string) error) (string, error) {
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("coach stream interrupted: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if err := emit(chunk.Content); err != nil {
			return "", err
		}
	}
	return builder.String(), nil
}

func summarize(plan Plan) string {
	session := plan.Session
	var builder strings.Builder
	fmt.Fprintf(&builder, "Practice: %s (%s)\n", session.Title, session.SessionType)
	fmt.Fprintf(&builder, "Planned length: %d minutes\n", meditation.DurationMinutes(session.Duration))
	fmt.Fprintf(&builder, "Mood before: %s\n", session.MoodBefore)
	fmt.Fprintf(&builder, "Mood after: %s\n", session.MoodAfter)
	if session.FocusScore != nil {
		fmt.Fprintf(&builder, "Focus score: %d/10\n", *session.FocusScore)
	}
	fmt.Fprintf(&builder, "Interruptions: %d\n", session.Interruptions)
	if eff := meditation.Effectiveness(session); eff != nil {
		fmt.Fprintf(&builder, "Effectiveness: %d/100\n", *eff)
	}
	if session.Notes != "" {
		fmt.Fprintf(&builder, "Notes: %s\n", session.Notes)
	}
	fmt.Fprintf(&builder, "Suggested next practice: %s", plan.Recommended)
	return builder.String()
}

func ruleReflection(plan Plan) string {
	session := plan.Session
	minutes := meditation.DurationMinutes(session.Duration)

	var opening string
	switch session.MoodImprovement {
	case 2:
		opening = fmt.Sprintf("Wonderful work. Your %d minutes of practice lifted you from %s to %s.", minutes, session.MoodBefore, session.MoodAfter)
	case 1:
		opening = fmt.Sprintf("Nice session. You moved from %s to %s in %d minutes.", session.MoodBefore, session.MoodAfter, minutes)
	case 0:
		opening = fmt.Sprintf("You held steady at %s through %d minutes. Showing up is the practice.", session.MoodAfter, minutes)
	default:
		opening = fmt.Sprintf("You ended this session feeling %s. Some sessions surface hard feelings, and noticing them matters.", session.MoodAfter)
	}

	parts := []string{opening}
	if session.Interruptions > 0 {
		parts = append(parts, "A quieter space may help you settle faster next time.")
	}
	parts = append(parts, fmt.Sprintf("Next, try a %s session.", plan.Recommended))
	return strings.Join(parts, " ")
}

const coachSystemPrompt = "You are a warm, concise meditation coach. Read the session summary and " +
	"write a reflection of at most three sentences: acknowledge how the session went, " +
	"name one thing to carry forward, and recommend the suggested next practice. Plain text only."
