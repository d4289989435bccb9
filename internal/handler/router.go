package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authHandler "github.com/zhouzirui/mindsync/backend/internal/handler/auth"
	coachHandler "github.com/zhouzirui/mindsync/backend/internal/handler/coach"
	communityHandler "github.com/zhouzirui/mindsync/backend/internal/handler/community"
	emotionHandler "github.com/zhouzirui/mindsync/backend/internal/handler/emotion"
	meditationHandler "github.com/zhouzirui/mindsync/backend/internal/handler/meditation"
	userHandler "github.com/zhouzirui/mindsync/backend/internal/handler/user"
	"github.com/zhouzirui/mindsync/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/mindsync/backend/internal/middleware"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/realtime"
	"github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/internal/service/coach"
	"github.com/zhouzirui/mindsync/backend/internal/service/community"
	"github.com/zhouzirui/mindsync/backend/internal/service/emotion"
	"github.com/zhouzirui/mindsync/backend/internal/service/meditation"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// Dependencies 路由所需的全部服务
type Dependencies struct {
	Auth       *auth.Service
	Users      user.Store
	Meditation *meditation.Service
	Emotion    *emotion.Service
	Coach      *coach.Service
	Community  *community.Service
	Hub        *realtime.Hub

	// Health reports backing store liveness; nil means always healthy.
	Health func(r *http.Request) error

	AllowedOrigins []string
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r); err != nil {
				utils.RespondErrorCode(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable")
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	auths := authHandler.New(deps.Auth)
	requireAuth := middlewarePkg.Authenticate(deps.Auth)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(middlewarePkg.RateLimitByIP(deps.AuthRateLimit, deps.AuthRateWindow))
			auths.RegisterPublicRoutes(public)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)

			auths.RegisterRoutes(protected)
			meditationHandler.New(deps.Meditation).RegisterRoutes(protected)
			emotionHandler.New(deps.Emotion).RegisterRoutes(protected)
			userHandler.New(deps.Users, deps.Meditation).RegisterRoutes(protected)
			communityHandler.New(deps.Community).RegisterRoutes(protected)
			coachHandler.New(deps.Coach).RegisterRoutes(protected)
			ws.New(deps.Hub, deps.Community, deps.Community, originChecker(deps.AllowedOrigins)).RegisterRoutes(protected)
		})
	})

	return r
}

// originChecker mirrors the CORS allow-list for websocket upgrades.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
