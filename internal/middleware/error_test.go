package middleware

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
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", service.ValidationError{Field: "type", Message: "is required"}, CodeInvalidRequest, http.StatusBadRequest},
		{"wrapped no candidate", fmt.Errorf("generate: %w", service.ErrNoCandidate), CodeNoCandidate, http.StatusNotFound},
		{"budget", service.ErrBudgetExceeded, CodeBudgetExceeded, http.StatusUnprocessableEntity},
		{"insufficient data", service.ErrInsufficientData, CodeInsufficientData, http.StatusUnprocessableEntity},
		{"training in progress", service.ErrTrainingInProgress, CodeTrainingInProgress, http.StatusConflict},
		{"model not found", service.ErrModelNotFound, CodeModelNotFound, http.StatusNotFound},
		{"timeout", context.DeadlineExceeded, CodeGatewayTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("pq: connection refused"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, got.Status)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("internal details are hidden", func(t *testing.T) {
		got := Resolve(errors.New("pq: password authentication failed"))
		assert.NotContains(t, got.Message, "password")
	})

	t.Run("validation field is reported", func(t *testing.T) {
		got := Resolve(service.ValidationError{Field: "budget", Message: "must be at least 0"})
		assert.Equal(t, "budget", got.Field)
	})
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("rank: %w", service.ErrNoCandidate))
	})
	router.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("ignored"))
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	t.Run("renders the attached error", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, CodeNoCandidate, body.Code)
	})

	t.Run("keeps a written response", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("recovery answers 500", func(t *testing.T) {
		r := gin.New()
		r.Use(Recovery(zap.NewNop()))
		r.GET("/panic", func(c *gin.Context) { panic("boom") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), CodeInternal)
	})
}
