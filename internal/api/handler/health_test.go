package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Check(t *testing.T) {
	check := func(h *HealthHandler) *httptest.ResponseRecorder {
		e := NewTestEcho()
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, h.Check(c))
		return rec
	}

	t.Run("依存先なし", func(t *testing.T) {
		rec := check(NewHealthHandler())

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"timestamp"`)
		assert.NotContains(t, rec.Body.String(), `"checks"`)
	})

	t.Run("依存先が正常", func(t *testing.T) {
		rec := check(NewHealthHandler(HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }}))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	})

	t.Run("依存先の障害は503", func(t *testing.T) {
		rec := check(NewHealthHandler(
			HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }},
		))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
		assert.Contains(t, rec.Body.String(), `"postgres":"connection refused"`)
	})
}
