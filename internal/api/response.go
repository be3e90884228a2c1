package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"fundboard/pkg/fundboard"
)

// ErrorResponse is the body of every non-2xx API response. Error repeats
// Message for clients that read {error}.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeErrorResponse maps err to an HTTP status. Structured errors expose
// their message only; anything else is a 500 with the error text.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	response := ErrorResponse{
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}

	var structured *fundboard.Error
	if errors.As(err, &structured) {
		status = mapErrorCodeToHTTPStatus(structured.Code)
		response.ErrorCode = string(structured.Code)
		response.Message = structured.Message
	}
	response.Code = status
	response.Error = response.Message

	if recorder, ok := w.(interface{ SetErrorMessage(string) }); ok {
		recorder.SetErrorMessage(err.Error())
	}
	writeJSON(w, status, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code fundboard.ErrorCode) int {
	switch code {
	case fundboard.ErrCodeInvalidInput, fundboard.ErrCodeConfiguration:
		return http.StatusBadRequest
	case fundboard.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case fundboard.ErrCodeNotFound:
		return http.StatusNotFound
	case fundboard.ErrCodeDuplicate:
		return http.StatusConflict
	case fundboard.ErrCodeUpstreamMetrics, fundboard.ErrCodeUpstream, fundboard.ErrCodeLLM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
