package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/api/handlers"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/application/service"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(h gin.HandlerFunc, method, route, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, route, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthHandler_Check(t *testing.T) {
	t.Run("returns 200 OK with health status", func(t *testing.T) {
		handler := handlers.NewHealthHandler(storage.NewMockRepository(), pinger{})

		rec := serve(handler.Check, http.MethodGet, "/health", "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		var response dto.HealthResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, "ok", response.Status)
		assert.NotEmpty(t, response.Timestamp)
		assert.Equal(t, map[string]string{"storage": "ok", "dolibarr": "ok"}, response.Checks)
	})

	t.Run("skips checks without dependencies", func(t *testing.T) {
		handler := handlers.NewHealthHandler(nil, nil)

		rec := serve(handler.Check, http.MethodGet, "/health", "/health")

		var response dto.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "ok", response.Status)
		assert.Empty(t, response.Checks)
	})

	t.Run("storage failure wins over ERP status", func(t *testing.T) {
		repo := storage.NewMockRepository()
		repo.StatsErr = errors.New("disk I/O error")
		handler := handlers.NewHealthHandler(repo, pinger{err: errors.New("timeout")})

		rec := serve(handler.Check, http.MethodGet, "/health", "/health")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var response dto.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "unavailable", response.Status)
		assert.Equal(t, "timeout", response.Checks["dolibarr"])
	})
}

func TestBase_WriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{storage.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{fmt.Errorf("load: %w", dolibarr.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{service.ErrJobNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{fmt.Errorf("%w: transaction 3 is ignored", storage.ErrInvalidTransition), http.StatusConflict, dto.ErrCodeConflict},
		{service.ErrJobFinished, http.StatusConflict, dto.ErrCodeConflict},
		{reconcile.ErrNoBankAccount, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{reconcile.ErrInvalidKind, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{dolibarr.ErrUnauthorized, http.StatusBadGateway, dto.ErrCodeUpstream},
		{fmt.Errorf("add payment: %w", &dolibarr.APIError{StatusCode: 500}), http.StatusBadGateway, dto.ErrCodeUpstream},
		{errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternalError},
	}
	base := handlers.NewBase(nil, nil)
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := serve(func(c *gin.Context) { base.WriteServiceError(c, tt.err, "transaction") },
				http.MethodGet, "/x", "/x")

			assert.Equal(t, tt.want, rec.Code)
			var apiErr dto.APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestParseIntParam(t *testing.T) {
	var got int
	h := func(c *gin.Context) { got = handlers.ParseIntParam(c, "limit", 50) }

	serve(h, http.MethodGet, "/x", "/x?limit=10")
	assert.Equal(t, 10, got)

	serve(h, http.MethodGet, "/x", "/x?limit=abc")
	assert.Equal(t, 50, got)

	serve(h, http.MethodGet, "/x", "/x")
	assert.Equal(t, 50, got)
}
