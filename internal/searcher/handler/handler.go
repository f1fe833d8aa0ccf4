package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/postingcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postingcore/pkg/middleware"
)

// Index is the read side the handler serves. *executor.Executor
// implements it.
type Index interface {
	Terms(ctx context.Context, field, prefix string, limit int) ([]merger.TermStats, error)
	TopTerms(ctx context.Context, field, prefix string, limit int) ([]merger.TermStats, error)
	Postings(ctx context.Context, field, term string, from uint32, limit int) (*executor.PostingsResult, error)
	Document(ctx context.Context, doc uint32) (*executor.DocumentResult, error)
	Stats() executor.IndexStats
	Generation() string
}

// TermsResponse is returned by the term listing endpoints.
type TermsResponse struct {
	Field    string              `json:"field"`
	Prefix   string              `json:"prefix,omitempty"`
	Terms    []executor.TermView `json:"terms"`
	CacheHit bool                `json:"cache_hit"`
}

type Handler struct {
	index        Index
	cache        *cache.TermCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New returns a Handler. termCache may be nil.
func New(index Index, termCache *cache.TermCache, defaultLimit, maxResults int) *Handler {
	return &Handler{
		index:        index,
		cache:        termCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/terms", h.Terms)
	mux.HandleFunc("GET /api/v1/terms/top", h.TopTerms)
	mux.HandleFunc("GET /api/v1/postings", h.Postings)
	mux.HandleFunc("GET /api/v1/docs/{doc}", h.Document)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	h.listTerms(w, r, "prefix", h.index.Terms)
}

func (h *Handler) TopTerms(w http.ResponseWriter, r *http.Request) {
	h.listTerms(w, r, "top", h.index.TopTerms)
}

type listFunc func(ctx context.Context, field, prefix string, limit int) ([]merger.TermStats, error)

func (h *Handler) listTerms(w http.ResponseWriter, r *http.Request, kind string, list listFunc) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'field' is required")
		return
	}
	limit, ok := h.limit(w, q.Get("limit"))
	if !ok {
		return
	}
	prefix := q.Get("prefix")

	compute := func() ([]merger.TermStats, error) { return list(ctx, field, prefix, limit) }
	var stats []merger.TermStats
	var err error
	hit := false
	if h.cache != nil {
		h.cache.SetGeneration(h.index.Generation())
		stats, hit, err = h.cache.GetOrCompute(ctx, cache.Query{Kind: kind, Field: field, Prefix: prefix, Limit: limit}, compute)
	} else {
		stats, err = compute()
	}
	if err != nil {
		log.Error("listing terms failed", "field", field, "prefix", prefix, "error", err)
		h.writeAppError(w, err)
		return
	}
	log.Debug("terms listed", "kind", kind, "field", field, "prefix", prefix, "count", len(stats), "cache_hit", hit)
	h.writeJSON(w, http.StatusOK, TermsResponse{
		Field:    field,
		Prefix:   prefix,
		Terms:    executor.Views(stats),
		CacheHit: hit,
	})
}

func (h *Handler) Postings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	field, term := q.Get("field"), q.Get("term")
	if field == "" || term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameters 'field' and 'term' are required")
		return
	}
	limit, ok := h.limit(w, q.Get("limit"))
	if !ok {
		return
	}
	var from uint32
	if s := q.Get("from"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "from must be a document number")
			return
		}
		from = uint32(n)
	}
	res, err := h.index.Postings(ctx, field, term, from, limit)
	if err != nil {
		logger.FromContext(ctx).Debug("postings lookup failed", "field", field, "term", term, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(r.PathValue("doc"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document number must be a non-negative integer")
		return
	}
	res, err := h.index.Document(r.Context(), uint32(n))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) limit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return h.defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, h.maxResults), true
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

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	h.writeError(w, status, message)
}
