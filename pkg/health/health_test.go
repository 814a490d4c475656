package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *Checker)
		status Status
	}{
		{
			name:   "no checks",
			setup:  func(*Checker) {},
			status: StatusUp,
		},
		{
			name: "optional dependency down",
			setup: func(c *Checker) {
				c.RegisterPing("index", true, func(context.Context) error { return nil })
				c.RegisterPing("redis", false, func(context.Context) error { return errors.New("refused") })
			},
			status: StatusDegraded,
		},
		{
			name: "required dependency down",
			setup: func(c *Checker) {
				c.RegisterPing("index", true, func(context.Context) error { return errors.New("closed") })
				c.RegisterPing("redis", false, nil)
			},
			status: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.setup(c)
			assert.Equal(t, tt.status, c.Run(context.Background()).Status)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterPing("redis", false, nil)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "not configured", report.Components["redis"].Message)

	c.RegisterPing("index", true, func(context.Context) error { return errors.New("closed") })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
