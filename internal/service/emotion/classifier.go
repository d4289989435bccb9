package emotion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/mindsync/backend/internal/model/meditation"
)

var errEmptyCompletion = errors.New("classifier returned empty content")

// Classification is a mood read from free text by a language model.
type Classification struct {
	Mood       meditation.Mood
	Confidence float64
	Reason     string
}

// Classifier maps check-in text to a mood.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ChainClassifier 使用 eino 链调用大模型完成情绪分类。
type ChainClassifier struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewChainClassifier compiles the prompt -> chat model chain.
func NewChainClassifier(ctx context.Context, chatModel model.ChatModel) (*ChainClassifier, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mood classifier chain: %w", err)
	}
	return &ChainClassifier{runnable: runnable}, nil
}

func (c *ChainClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	msg, err := c.runnable.Invoke(ctx, map[string]any{"text": strings.TrimSpace(text)})
	if err != nil {
		return Classification{}, err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Classification{}, errEmptyCompletion
	}
	return parseClassifierOutput(msg.Content)
}

// ChatCompleter is the subset of the go-openai client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier classifies through an OpenAI compatible chat completion API.
type OpenAIClassifier struct {
	client ChatCompleter
	model  string
}

// NewOpenAIClient builds a go-openai client, honouring a custom base URL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIClassifier(client ChatCompleter, modelName string) *OpenAIClassifier {
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAIClassifier{client: client, model: modelName}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: strings.Replace(classifierUserPrompt, "{text}", strings.TrimSpace(text), 1)},
		},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		return Classification{}, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Classification{}, errEmptyCompletion
	}
	return parseClassifierOutput(resp.Choices[0].Message.Content)
}

type classifierPayload struct {
	Mood       string  `json:"mood"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍前后的多余文本。
func parseClassifierOutput(content string) (Classification, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return Classification{}, fmt.Errorf("missing json object")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return Classification{}, err
	}

	mood := meditation.Mood(strings.ToLower(strings.TrimSpace(payload.Mood)))
	if !meditation.ValidMood(mood) {
		return Classification{}, fmt.Errorf("unknown mood %q", payload.Mood)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}
	return Classification{Mood: mood, Confidence: confidence, Reason: strings.TrimSpace(payload.Reason)}, nil
}

const classifierSystemPrompt = "You are a mindfulness coach reading a short mood check-in. " +
	"Infer the writer's current mood. Reply with one JSON object only, with the keys " +
	"mood (one of excited, happy, calm, neutral, tired, stressed, anxious, sad, angry), " +
	"confidence (a number between 0 and 1) and reason (one short sentence). No other text."

const classifierUserPrompt = "Check-in:\n{text}"
