package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	model "github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/service/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/validation"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// Handler 用户资料与偏好设置
type Handler struct {
	users      model.Store
	meditation *meditation.Service
}

func New(users model.Store, meditationSvc *meditation.Service) *Handler {
	return &Handler{users: users, meditation: meditationSvc}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users/profile", h.handleProfile)
	r.Put("/users/preferences", h.handlePreferences)
}

// Profile is the signed-in user with the engine's stats.
type Profile struct {
	User  model.User       `json:"user"`
	Stats meditation.Stats `json:"stats"`
}

// PreferencesInput is a partial update; omitted fields keep their value.
type PreferencesInput struct {
	MeditationStyle      *string `json:"meditationStyle" validate:"omitempty,max=50"`
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	Theme                *string `json:"theme" validate:"omitempty,oneof=light dark system"`
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	u, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, r, storeError(err))
		return
	}
	stats, err := h.meditation.GetUserStats(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, Profile{User: u, Stats: stats})
}

func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var in PreferencesInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	if err := validation.Struct(in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	userID := middleware.UserID(r.Context())
	current, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		utils.RespondAppError(w, r, storeError(err))
		return
	}

	prefs := current.Profile.Preferences
	if in.MeditationStyle != nil {
		prefs.MeditationStyle = *in.MeditationStyle
	}
	if in.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *in.NotificationsEnabled
	}
	if in.Theme != nil {
		prefs.Theme = *in.Theme
	}

	updated, err := h.users.UpdatePreferences(r.Context(), userID, prefs)
	if err != nil {
		utils.RespondAppError(w, r, storeError(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"preferences": updated.Profile.Preferences,
		"updatedAt":   updated.UpdatedAt,
	})
}

func storeError(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Storage("failed to access user", err)
}
