package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"fundboard/pkg/fundboard"
)

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code fundboard.ErrorCode
		want int
	}{
		{fundboard.ErrCodeInvalidInput, http.StatusBadRequest},
		{fundboard.ErrCodeConfiguration, http.StatusBadRequest},
		{fundboard.ErrCodeUnauthorized, http.StatusUnauthorized},
		{fundboard.ErrCodeNotFound, http.StatusNotFound},
		{fundboard.ErrCodeDuplicate, http.StatusConflict},
		{fundboard.ErrCodeUpstreamMetrics, http.StatusBadGateway},
		{fundboard.ErrCodeUpstream, http.StatusBadGateway},
		{fundboard.ErrCodeLLM, http.StatusBadGateway},
		{fundboard.ErrCodeDatabase, http.StatusInternalServerError},
		{fundboard.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestWriteErrorResponse(t *testing.T) {
	t.Run("structured error exposes message only", func(t *testing.T) {
		err := fmt.Errorf("analyze: %w", fundboard.WrapError(fundboard.ErrCodeLLM, "AI service error", errors.New("dial tcp: refused")))

		rr := httptest.NewRecorder()
		writeErrorResponse(rr, httptest.NewRequest(http.MethodGet, "/", nil), err)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		resp := decodeBody[ErrorResponse](t, rr)
		assert.Equal(t, http.StatusBadGateway, resp.Code)
		assert.Equal(t, "AI service error", resp.Message)
		assert.Equal(t, "AI service error", resp.Error)
		assert.Equal(t, "LLM_ERROR", resp.ErrorCode)
		assert.NotContains(t, rr.Body.String(), "refused")
	})

	t.Run("plain error is internal", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeErrorResponse(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		resp := decodeBody[ErrorResponse](t, rr)
		assert.Equal(t, "boom", resp.Message)
		assert.Empty(t, resp.ErrorCode)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		var rr *httptest.ResponseRecorder
		h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeErrorResponse(w, r, fundboard.NewError(fundboard.ErrCodeNotFound, "Fund not found"))
		}))
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NotEmpty(t, decodeBody[ErrorResponse](t, rr).RequestID)
	})
}
