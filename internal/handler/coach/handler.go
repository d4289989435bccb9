package coach

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	service "github.com/zhouzirui/mindsync/backend/internal/service/coach"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// SSE event names.
const (
	EventStart = "start"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Handler streams post-session reflections over Server-Sent Events.
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/coach/reflection/{sessionID}", h.handleReflection)
}

func (h *Handler) handleReflection(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	plan, err := h.svc.Prepare(r.Context(), sessionID, middleware.UserID(r.Context()))
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, EventStart, map[string]any{
		"sessionId":              sessionID,
		"recommendedSessionType": plan.Recommended,
	}); err != nil {
		return
	}

	reflection, err := h.svc.Stream(r.Context(), plan, func(chunk string) error {
		return utils.SendSSEEvent(w, flusher, EventChunk, map[string]string{"content": chunk})
	})
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("session_id", sessionID).Msg("[coach] reflection failed")
		_ = utils.SendSSEEvent(w, flusher, EventError, utils.ErrorBody{Error: "reflection failed", Code: "COACH_ERROR"})
		return
	}

	_ = utils.SendSSEEvent(w, flusher, EventDone, reflection)
	logging.Ctx(r.Context()).Info().Str("session_id", sessionID).Str("source", reflection.Source).
		Msg("[coach] reflection streamed")
}
