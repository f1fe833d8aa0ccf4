package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
)

type fakePublisher struct {
	ingested []ingestion.IngestRequest
	deleted  []uint32
	fail     error
}

func (f *fakePublisher) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.ingested = append(f.ingested, *req)
	return &ingestion.IngestResponse{Op: ingestion.OpIndex, Status: "QUEUED"}, nil
}

func (f *fakePublisher) Delete(_ context.Context, doc uint32) (*ingestion.IngestResponse, error) {
	f.deleted = append(f.deleted, doc)
	return &ingestion.IngestResponse{Op: ingestion.OpDelete, Status: "QUEUED", Doc: &doc}, nil
}

type fields map[string]bool

func (f fields) Has(name string) bool { return f[name] }

func do(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestIngest(t *testing.T) {
	pub := &fakePublisher{}
	h := New(pub, fields{"title": true})

	rec := do(h, http.MethodPost, "/api/v1/documents", `{"fields":{"title":"hello"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, pub.ingested, 1)

	rec = do(h, http.MethodPost, "/api/v1/documents", `{"fields":{"color":"red"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown field")

	rec = do(h, http.MethodPost, "/api/v1/documents", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pub.fail = errors.New("broker down")
	rec = do(h, http.MethodPost, "/api/v1/documents", `{"fields":{"title":"again"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "broker")
}

func TestDelete(t *testing.T) {
	pub := &fakePublisher{}
	h := New(pub, fields{})

	rec := do(h, http.MethodDelete, "/api/v1/documents/12", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uint32{12}, pub.deleted)

	rec = do(h, http.MethodDelete, "/api/v1/documents/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
