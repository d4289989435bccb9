package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Mongo      MongoConfig      `koanf:"mongo"`
	Auth       AuthConfig       `koanf:"auth"`
	AI         AIConfig         `koanf:"ai"`
	OpenAI     OpenAIConfig     `koanf:"openai"`
	Vision     VisionConfig     `koanf:"vision"`
	Meditation MeditationConfig `koanf:"meditation"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `koanf:"port"`
	Environment     string        `koanf:"environment"`
	FrontendURL     string        `koanf:"frontend_url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr 解析服务器监听地址。
func (c ServerConfig) Addr() (string, error) {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// IsDevelopment reports whether relaxed defaults are allowed.
func (c ServerConfig) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// MongoConfig 描述文档数据库连接。URI 为空时使用内存存储。
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// Enabled 表示是否配置了 MongoDB。
func (c MongoConfig) Enabled() bool {
	return c.URI != ""
}

// AuthConfig 描述令牌签发与登录限流。
type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	RateLimit  int           `koanf:"rate_limit"`
	RateWindow time.Duration `koanf:"rate_window"`
}

// Mood classifier backends.
const (
	ClassifierHeuristic = "heuristic"
	ClassifierArk       = "ark"
	ClassifierOpenAI    = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey            string   `koanf:"api_key"`
	AccessKey         string   `koanf:"access_key"`
	SecretKey         string   `koanf:"secret_key"`
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	Region            string   `koanf:"region"`
	Temperature       *float64 `koanf:"temperature"`
	TopP              *float64 `koanf:"top_p"`
	MaxTokens         *int     `koanf:"max_tokens"`
	StreamResponse    bool     `koanf:"stream_response"`
	EmotionLLMEnabled bool     `koanf:"emotion_llm_enabled"`
	MoodClassifier    string   `koanf:"mood_classifier"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// OpenAIConfig 描述备用的 OpenAI 兼容模型。
type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// VisionConfig 描述 Google Vision 人脸情绪识别。
type VisionConfig struct {
	APIKey   string        `koanf:"api_key"`
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

// MeditationConfig tunes the session analytics engine.
type MeditationConfig struct {
	StatsCacheTTL  time.Duration `koanf:"stats_cache_ttl"`
	StreakTimezone string        `koanf:"streak_timezone"`
}

// Location resolves the streak time zone.
func (c MeditationConfig) Location() (*time.Location, error) {
	if c.StreakTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", c.StreakTimezone, err)
	}
	return loc, nil
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate 检查配置的一致性。
func (c *Config) Validate() error {
	if _, err := c.Server.Addr(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" && !c.Server.IsDevelopment() {
		return fmt.Errorf("JWT_SECRET is required when ENVIRONMENT=%s", c.Server.Environment)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Auth.RateLimit < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must not be negative, got %d", c.Auth.RateLimit)
	}

	switch c.AI.MoodClassifier {
	case ClassifierHeuristic, ClassifierArk, ClassifierOpenAI:
	default:
		return fmt.Errorf("unknown MOOD_CLASSIFIER %q (want %s, %s or %s)",
			c.AI.MoodClassifier, ClassifierHeuristic, ClassifierArk, ClassifierOpenAI)
	}

	if c.Meditation.StatsCacheTTL < 0 {
		return fmt.Errorf("STATS_CACHE_TTL must not be negative, got %s", c.Meditation.StatsCacheTTL)
	}
	if _, err := c.Meditation.Location(); err != nil {
		return err
	}
	return nil
}
