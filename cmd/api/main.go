package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/mindsync/backend/internal/config"
	"github.com/zhouzirui/mindsync/backend/internal/handler"
	"github.com/zhouzirui/mindsync/backend/internal/logging"
	emotionmodel "github.com/zhouzirui/mindsync/backend/internal/model/emotion"
	meditationmodel "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/realtime"
	"github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/internal/service/coach"
	"github.com/zhouzirui/mindsync/backend/internal/service/community"
	"github.com/zhouzirui/mindsync/backend/internal/service/emotion"
	"github.com/zhouzirui/mindsync/backend/internal/service/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/service/vision"
	"github.com/zhouzirui/mindsync/backend/internal/storage/mongostore"
)

type stores struct {
	users    user.Store
	sessions meditationmodel.Store
	emotions emotionmodel.Store
	health   func(*http.Request) error
	close    func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logging.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if cfg.UsesDevSecret() {
		logging.Warn().Msg("JWT_SECRET 未配置，使用开发环境默认密钥")
	}

	st, err := openStores(ctx, cfg.Mongo)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open storage")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			logging.Warn().Err(err).Msg("failed to close storage")
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize token manager")
	}

	loc, err := cfg.Meditation.Location()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid meditation config")
	}

	hub := realtime.NewHub()

	meditationSvc := meditation.NewService(st.sessions, st.users, meditation.Options{
		Location: loc,
		StatsTTL: cfg.Meditation.StatsCacheTTL,
	})
	defer meditationSvc.Close()
	meditationSvc.SetNotifier(hub)

	// Initialize AI chat model
	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to initialize Ark chat model, continuing without AI functionality")
			chatModel = nil
		} else {
			logging.Info().Str("model", cfg.AI.Model).Msg("Ark chat model initialized")
		}
	} else {
		logging.Info().Msg("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	visionClient := vision.NewClient(vision.Config{
		APIKey:   cfg.Vision.APIKey,
		Endpoint: cfg.Vision.Endpoint,
		Timeout:  cfg.Vision.Timeout,
	})
	if !visionClient.Enabled() {
		logging.Info().Msg("GOOGLE_VISION_API_KEY not set, image analysis uses mock readings")
	}

	emotionSvc := emotion.NewService(st.emotions, emotion.Options{
		Detector:   visionClient,
		Classifier: newClassifier(ctx, cfg, chatModel),
	})

	var coachModel model.ChatModel
	if cfg.AI.StreamResponse {
		coachModel = chatModel
	}
	coachSvc, err := coach.NewService(ctx, meditationSvc, coachModel)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize coach chain, reflections use rules only")
		coachSvc, _ = coach.NewService(ctx, meditationSvc, nil)
	}

	communitySvc := community.NewService(0)
	defer communitySvc.Close()
	communitySvc.SetBroadcaster(hub)

	router := handler.NewRouter(handler.Dependencies{
		Auth:           auth.NewService(st.users, tokens),
		Users:          st.users,
		Meditation:     meditationSvc,
		Emotion:        emotionSvc,
		Coach:          coachSvc,
		Community:      communitySvc,
		Hub:            hub,
		Health:         st.health,
		AllowedOrigins: splitOrigins(cfg.Server.FrontendURL),
		AuthRateLimit:  cfg.Auth.RateLimit,
		AuthRateWindow: cfg.Auth.RateWindow,
	})

	startServer(ctx, cfg.Server, router)
}

func openStores(ctx context.Context, cfg config.MongoConfig) (stores, error) {
	if !cfg.Enabled() {
		logging.Info().Msg("MONGODB_URI not set, using in-memory stores")
		return stores{
			users:    user.NewMemoryStore(),
			sessions: meditationmodel.NewMemoryStore(),
			emotions: emotionmodel.NewMemoryStore(),
			close:    func(context.Context) error { return nil },
		}, nil
	}

	client, err := mongostore.Connect(ctx, cfg.URI, cfg.Database)
	if err != nil {
		return stores{}, err
	}

	return stores{
		users:    mongostore.NewUserStore(client),
		sessions: mongostore.NewSessionStore(client),
		emotions: mongostore.NewEmotionStore(client),
		health: func(r *http.Request) error {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		},
		close: client.Close,
	}, nil
}

// newClassifier picks the check-in mood classifier. Nil means keyword heuristics only.
func newClassifier(ctx context.Context, cfg *config.Config, chatModel model.ChatModel) emotion.Classifier {
	backend := cfg.AI.MoodClassifier
	if backend == config.ClassifierHeuristic && cfg.AI.EmotionLLMEnabled {
		backend = config.ClassifierArk
	}

	switch backend {
	case config.ClassifierArk:
		if chatModel == nil {
			logging.Warn().Msg("Ark classifier requested but chat model unavailable, falling back to heuristics")
			return nil
		}
		classifier, err := emotion.NewChainClassifier(ctx, chatModel)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to build Ark classifier, falling back to heuristics")
			return nil
		}
		logging.Info().Msg("mood classifier: ark")
		return classifier
	case config.ClassifierOpenAI:
		if !cfg.OpenAI.Enabled() {
			logging.Warn().Msg("OpenAI classifier requested but OPENAI_API_KEY not set, falling back to heuristics")
			return nil
		}
		logging.Info().Str("model", cfg.OpenAI.Model).Msg("mood classifier: openai")
		return emotion.NewOpenAIClassifier(emotion.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL), cfg.OpenAI.Model)
	default:
		return nil
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr, err := serverCfg.Addr()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid server address")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Info().Str("addr", addr).Str("environment", serverCfg.Environment).Msg("MindSync backend listening")
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		logging.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
