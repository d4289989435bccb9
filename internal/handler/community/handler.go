package community

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	service "github.com/zhouzirui/mindsync/backend/internal/service/community"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// Handler 社区动态
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/community/feed", h.handleFeed)
	r.Post("/community/status", h.handleStatus)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"members": h.svc.Feed(r.Context(), middleware.UserID(r.Context())),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var in service.StatusInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	u, _ := middleware.UserFromContext(r.Context())
	status, err := h.svc.UpdateStatus(r.Context(), u, in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}
