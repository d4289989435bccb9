package emotion

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindsync/backend/internal/middleware"
	service "github.com/zhouzirui/mindsync/backend/internal/service/emotion"
	"github.com/zhouzirui/mindsync/backend/pkg/apperr"
	"github.com/zhouzirui/mindsync/backend/pkg/utils"
)

// MaxImageBytes caps uploaded images. Images are analysed in memory and never stored.
const MaxImageBytes = 5 << 20

// Handler 情绪采集的HTTP处理器
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects to be mounted behind middleware.Authenticate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/emotion", func(r chi.Router) {
		r.Post("/analyze", h.handleAnalyze)
		r.Post("/checkin", h.handleCheckIn)
		r.Get("/history", h.handleHistory)
	})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondAppError(w, r, apperr.Validation("image must be at most 5MB"))
			return
		}
		utils.RespondAppError(w, r, apperr.Validation("expected multipart form with an image field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondAppError(w, r, apperr.Validation("No image provided"))
		return
	}
	defer file.Close()
	if header.Size > MaxImageBytes {
		utils.RespondAppError(w, r, apperr.Validation("image must be at most 5MB"))
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		utils.RespondAppError(w, r, apperr.Validation("failed to read image"))
		return
	}

	in := service.ImageInput{
		Image: image,
		Context: service.ContextInput{
			Location:  r.FormValue("location"),
			Activity:  r.FormValue("activity"),
			TimeOfDay: r.FormValue("timeOfDay"),
		},
	}
	record, err := h.svc.AnalyzeImage(r.Context(), middleware.UserID(r.Context()), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var in service.CheckInInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	record, err := h.svc.CheckIn(r.Context(), middleware.UserID(r.Context()), in)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.QueryInt(r, "limit", service.DefaultHistoryLimit)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}

	records, err := h.svc.History(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		utils.RespondAppError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"records": records})
}
