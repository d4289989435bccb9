package meditation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	model "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	service "github.com/zhouzirui/mindsync/backend/internal/service/meditation"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

const (
	defaultLimit = 10
	defaultPage  = 1
)

// Handler 冥想会话与统计的HTTP处理器
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/meditation", func(r chi.Router) {
		r.Post("/sessions", h.handleStart)
		r.Get("/sessions", h.handleList)
		r.Get("/sessions/{sessionID}", h.handleGet)
		r.Post("/sessions/{sessionID}/complete", h.handleComplete)
		r.Get("/stats", h.handleStats)
		r.Get("/streak", h.handleStreak)
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var in service.StartInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	session, err := h.svc.StartSession(r.Context(), middleware.UserID(r.Context()), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, model.NewView(session))
}

// handleComplete 完成会话。统计更新失败时返回存储错误，但会话本身仍保持已完成。
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var in service.CompleteInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	session, err := h.svc.CompleteSession(r.Context(), chi.URLParam(r, "sessionID"), middleware.UserID(r.Context()), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, model.NewView(session))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"), middleware.UserID(r.Context()))
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, model.NewView(session))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.QueryInt(r, "limit", defaultLimit)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	page, err := utils.QueryInt(r, "page", defaultPage)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	result, err := h.svc.GetRecentSessions(r.Context(), middleware.UserID(r.Context()), limit, page)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetUserStats(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := h.svc.GetCurrentStreak(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{"currentStreak": streak})
}
