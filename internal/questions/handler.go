package questions

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/proctor-cat/backend/internal/middleware"
	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/worker"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts candidate routes on protected and review routes on
// admin. Authentication is applied by the caller.
func (h *Handler) RegisterRoutes(protected, admin *mux.Router) {
	protected.HandleFunc("/cat/answers", h.SubmitAnswer).Methods("POST")
	protected.HandleFunc("/cat/fraud-scans", h.ScanSession).Methods("POST")

	admin.HandleFunc("/calibrations", h.StartCalibration).Methods("POST")
	admin.HandleFunc("/calibrations/{id}", h.GetCalibration).Methods("GET")
	admin.HandleFunc("/items/misfits", h.Misfits).Methods("GET")
	admin.HandleFunc("/items/{id}/quality", h.ItemQuality).Methods("GET")
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var ev models.AnswerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.SubmitAnswer(r.Context(), userID, ev)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ScanSession(w http.ResponseWriter, r *http.Request) {
	var req models.FraudScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.ScanSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ── Admin: Calibration ──────────────────────────────────

func (h *Handler) StartCalibration(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	runID, err := h.service.EnqueueCalibration(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": string(models.RunQueued)})
}

func (h *Handler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetCalibrationRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) Misfits(w http.ResponseWriter, r *http.Request) {
	var threshold *float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "threshold must be a number"})
			return
		}
		threshold = &v
	}

	items, err := h.service.Misfits(r.Context(), threshold)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) ItemQuality(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ItemQuality(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, models.ErrMissingField), errors.Is(err, models.ErrNonFinite),
		errors.Is(err, models.ErrOutOfRange), errors.Is(err, models.ErrLengthMismatch):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, ErrDuplicateAnswer), errors.Is(err, ErrNotCalibrated):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrClosed):
		status, msg = http.StatusServiceUnavailable, "Calibration queue is busy, retry later"
	}
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
