// Package handler exposes the index service over HTTP. Responses use a fixed
// envelope: {"success": true, "result": ...} or {"success": false,
// "error": {"message": ...}}.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mvkrishnan/photoindex/internal/index"
	apperrors "github.com/mvkrishnan/photoindex/pkg/errors"
	"github.com/mvkrishnan/photoindex/pkg/logger"
	"github.com/mvkrishnan/photoindex/pkg/tracing"
)

type Handler struct {
	service *index.Service
	logger  *slog.Logger
}

func New(service *index.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "index-handler"),
	}
}

type response struct {
	Success bool       `json:"success"`
	Result  any        `json:"result,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Update applies a batch of signed deltas to one or both slots.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "http.index.update", logger.RequestIDFromContext(ctx))

	var update index.IndexUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		span.End()
		h.writeFailure(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := h.service.Update(ctx, update)
	span.End()
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("index update failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeFailure(w, statusCode, "index update failed")
		return
	}
	log.Info("index updated",
		"tags", slotOutcome(result.Tags),
		"people", slotOutcome(result.People),
	)
	h.writeSuccess(w, result)
}

// Read returns both slots with non-positive counters pruned, persisting the
// cleaned state when anything was dropped.
func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "http.index.read", logger.RequestIDFromContext(ctx))

	result, err := h.service.Read(ctx)
	span.End()
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("index read failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeFailure(w, statusCode, "index read failed")
		return
	}
	h.writeSuccess(w, result)
}

func slotOutcome(res *index.SlotResult) string {
	switch {
	case res == nil:
		return "absent"
	case res.Skipped:
		return "skipped"
	default:
		return "applied"
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, result any) {
	h.writeJSON(w, http.StatusOK, response{Success: true, Result: result})
}

func (h *Handler) writeFailure(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, response{Success: false, Error: &errorBody{Message: message}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
