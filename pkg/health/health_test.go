package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunTakesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["cache"].Message)

	c.Register("disk", PingCheck(func(context.Context) error { return errors.New("gone") }, StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	c.Register("index", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
