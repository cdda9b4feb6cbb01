// Package httputil centralizes domain error translation to HTTP responses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "subport/pkg/domain-errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// statusFor maps domain error codes to HTTP status and wire error codes.
var statusFor = map[dErrors.Code]struct {
	status int
	code   string
}{
	dErrors.CodeValidation:      {http.StatusBadRequest, "validation_error"},
	dErrors.CodeBadRequest:      {http.StatusBadRequest, "bad_request"},
	dErrors.CodeNotFound:        {http.StatusNotFound, "not_found"},
	dErrors.CodeConflict:        {http.StatusConflict, "conflict"},
	dErrors.CodeUnauthorized:    {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeForbidden:       {http.StatusForbidden, "forbidden"},
	dErrors.CodeNotSubscription: {http.StatusNotFound, "not_found"},
	dErrors.CodeInvalidState:    {http.StatusConflict, "invalid_state"},
	dErrors.CodeUnsupported:     {http.StatusUnprocessableEntity, "unsupported_operation"},
	dErrors.CodeBusinessRule:    {http.StatusUnprocessableEntity, "user_error"},
}

// WriteError renders a domain error as a JSON response. Internal errors
// (and anything uncoded) omit the description so infrastructure details
// never reach callers.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	description := ""

	if mapped, ok := statusFor[dErrors.GetCode(err)]; ok {
		status = mapped.status
		code = mapped.code
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			description = dErr.Message()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Description: description})
}

// WriteJSON renders v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
