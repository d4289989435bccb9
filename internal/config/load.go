package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names an optional YAML file layered between defaults and env.
const ConfigPathEnvVar = "MINDSYNC_CONFIG"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

// devJWTSecret is only used when no secret is configured in development.
const devJWTSecret = "mindsync-development-secret"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Environment:     "development",
			FrontendURL:     "http://localhost:3000",
			ShutdownTimeout: 5 * time.Second,
		},
		Mongo: MongoConfig{
			Database: "mindsync",
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			RateLimit:  20,
			RateWindow: time.Minute,
		},
		AI: AIConfig{
			BaseURL:        "https://ark.cn-beijing.volces.com/api/v3",
			Region:         "cn-beijing",
			StreamResponse: true,
			MoodClassifier: ClassifierHeuristic,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Vision: VisionConfig{
			Endpoint: "https://vision.googleapis.com/v1/images:annotate",
			Timeout:  10 * time.Second,
		},
		Meditation: MeditationConfig{
			StatsCacheTTL:  30 * time.Second,
			StreakTimezone: "UTC",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// envMappings maps environment variable names (lower-cased) to config paths.
var envMappings = map[string]string{
	"port":         "server.port",
	"environment":  "server.environment",
	"frontend_url": "server.frontend_url",

	"mongodb_uri":      "mongo.uri",
	"mongodb_database": "mongo.database",

	"jwt_secret":       "auth.jwt_secret",
	"token_ttl":        "auth.token_ttl",
	"auth_rate_limit":  "auth.rate_limit",
	"auth_rate_window": "auth.rate_window",

	"ark_api_key":            "ai.api_key",
	"ark_access_key":         "ai.access_key",
	"ark_secret_key":         "ai.secret_key",
	"model":                  "ai.model",
	"ark_base_url":           "ai.base_url",
	"ark_region":             "ai.region",
	"ark_temperature":        "ai.temperature",
	"ark_top_p":              "ai.top_p",
	"ark_max_tokens":         "ai.max_tokens",
	"ark_stream":             "ai.stream_response",
	"ai_emotion_llm_enabled": "ai.emotion_llm_enabled",
	"mood_classifier":        "ai.mood_classifier",

	"openai_api_key":  "openai.api_key",
	"openai_model":    "openai.model",
	"openai_base_url": "openai.base_url",

	"google_vision_api_key": "vision.api_key",
	"vision_endpoint":       "vision.endpoint",
	"vision_timeout":        "vision.timeout",

	"stats_cache_ttl": "meditation.stats_cache_ttl",
	"streak_timezone": "meditation.streak_timezone",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// Load 按默认值、YAML 文件、环境变量的顺序加载配置。
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Auth.JWTSecret == "" && cfg.Server.IsDevelopment() {
		cfg.Auth.JWTSecret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// UsesDevSecret reports whether the built-in development JWT secret is active.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

// envTransform keeps only mapped, non-blank variables so unrelated
// environment entries never reach the config tree.
func envTransform(key, value string) (string, interface{}) {
	mapped, ok := envMappings[strings.ToLower(key)]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	return mapped, value
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
