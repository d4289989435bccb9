package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	service "github.com/zhouzirui/mindsync/backend/internal/service/auth"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// Handler 账户与令牌相关的HTTP处理器
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes 注册无需令牌的路由
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/demo-login", h.handleDemoLogin)
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/verify", h.handleVerify)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDemoLogin(w http.ResponseWriter, r *http.Request) {
	var in service.DemoLoginInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	res, err := h.svc.DemoLogin(r.Context(), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	utils.RespondJSON(w, http.StatusOK, map[string]any{"valid": true, "user": u})
}
