package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/backfill"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// Backfiller runs one backfill request
type Backfiller interface {
	Run(ctx context.Context, req models.BackfillRequest) (*models.BackfillResult, error)
}

// Reader is the read side of a store
type Reader interface {
	AvailableDates(ctx context.Context, start, end string) ([]string, error)
	CountRecords(ctx context.Context) (int64, error)
}

// ReaderProvider returns the remote store, or the local one when local is true
type ReaderProvider func(ctx context.Context, local bool) (Reader, error)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service Backfiller
	readers ReaderProvider
	logger  *log.Logger
}

// NewHandler creates a new Handler
func NewHandler(service Backfiller, readers ReaderProvider, logger *log.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		service: service,
		readers: readers,
		logger:  logger,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type backfillResponse struct {
	Success        bool                         `json:"success"`
	Message        string                       `json:"message"`
	RunID          string                       `json:"run_id,omitempty"`
	TotalRecords   int                          `json:"total_records"`
	AvailableDates []string                     `json:"available_dates"`
	DailyStats     map[string]models.DailyStats `json:"daily_stats"`
	WriteMode      models.WriteMode             `json:"write_mode,omitempty"`
}

type queryResponse struct {
	Success    bool     `json:"success"`
	Dates      []string `json:"dates"`
	TotalCount int64    `json:"total_count"`
}

// Backfill handles POST /api/backfill
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req models.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// a client that disconnects must not abort a run halfway through the range
	result, err := h.service.Run(context.WithoutCancel(r.Context()), req)
	switch {
	case errors.Is(err, backfill.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, backfill.ErrStoreUnavailable):
		h.logger.Error().Err(err).Msg("backfill store unavailable")
		respondError(w, http.StatusInternalServerError, backfill.ErrStoreUnavailable.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("backfill failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// no rows in range: the per-day stats are not reported
	if result.Fetched == 0 {
		respondJSON(w, http.StatusOK, backfillResponse{
			Success:        true,
			Message:        "no data in the requested range",
			AvailableDates: []string{},
			DailyStats:     map[string]models.DailyStats{},
		})
		return
	}

	respondJSON(w, http.StatusOK, backfillResponse{
		Success:        true,
		Message:        fmt.Sprintf("wrote %d records", result.TotalRecords),
		RunID:          result.RunID,
		TotalRecords:   result.TotalRecords,
		AvailableDates: result.AvailableDates,
		DailyStats:     result.DailyStats,
		WriteMode:      result.WriteMode,
	})
}

// Query handles GET /api/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	local, _ := strconv.ParseBool(q.Get("use_local_db"))

	reader, err := h.readers(r.Context(), local)
	if err != nil {
		h.logger.Error().Bool("use_local_db", local).Err(err).Msg("query store unavailable")
		respondError(w, http.StatusInternalServerError, backfill.ErrStoreUnavailable.Error())
		return
	}

	dates, err := reader.AvailableDates(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	count, err := reader.CountRecords(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, queryResponse{
		Success:    true,
		Dates:      dates,
		TotalCount: count,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Success: false, Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
