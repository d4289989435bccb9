package ws

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	"github.com/zhouzirui/mindsync/backend/internal/realtime"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// PresenceClearer forgets a user's live status once their last connection closes.
type PresenceClearer interface {
	ClearStatus(userID string)
}

// Handler WebSocket 实时通道
type Handler struct {
	hub      *realtime.Hub
	statuses realtime.StatusSink
	presence PresenceClearer
	upgrader websocket.Upgrader
}

// New creates the handler. allowOrigin decides which browser origins may connect.
func New(hub *realtime.Hub, statuses realtime.StatusSink, presence PresenceClearer, allowOrigin func(*http.Request) bool) *Handler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		statuses: statuses,
		presence: presence,
		upgrader: websocket.Upgrader{
			CheckOrigin:     allowOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.RespondErrorCode(w, http.StatusUnauthorized, "NO_TOKEN", "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, u, h.statuses)
	if remaining := client.Run(r.Context()); remaining == 0 && h.presence != nil {
		h.presence.ClearStatus(u.ID)
	}
}
