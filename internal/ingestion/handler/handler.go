package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
)

// Publisher is implemented by *publisher.Publisher.
type Publisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	Delete(ctx context.Context, doc uint32) (*ingestion.IngestResponse, error)
}

type Handler struct {
	publisher Publisher
	fields    validator.Fields
	logger    *slog.Logger
}

func New(pub Publisher, fields validator.Fields) *Handler {
	return &Handler{
		publisher: pub,
		fields:    fields,
		logger:    logger.WithComponent("ingestion-handler"),
	}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{doc}", h.Delete)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.fields); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document queued", "content_hash", resp.ContentHash)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := strconv.ParseUint(r.PathValue("doc"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document number must be a non-negative integer")
		return
	}
	resp, err := h.publisher.Delete(ctx, uint32(doc))
	if err != nil {
		logger.FromContext(ctx).Error("delete failed", "doc", doc, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "delete failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
