package handler

// RESPONSE HELPERS:
// Pages and AJAX endpoints share one error mapping. Page routes render the
// "error" view with the mapped status; AJAX routes get a JSON body:
//   {"error": "not_found", "message": "User not Found!"}
//
// The browser scripts only look at the status code and the message, so the
// shape stays the same for every error.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/movielists/internal/apperror"
)

// maxFormBytes caps the body of any AJAX request. The largest legitimate
// payload is a list description.
const maxFormBytes = 64 << 10

// genericUpstreamMessage hides store and catalog failures from the user.
const genericUpstreamMessage = "Something broke!"

// ErrorResponse is the error format returned by all AJAX endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of a successful AJAX call that has nothing
// else to report.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeOK acknowledges an AJAX call.
func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "OK"})
}

// writeError maps a domain error to its HTTP status and sends it as JSON.
func writeError(w http.ResponseWriter, err error) {
	status, errorType, message := classify(err)
	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}

// classify translates an error from the service layer into an HTTP status,
// a machine-readable type and a message that is safe to show.
//
// ERROR MAPPING:
// The service and repository layers never mention HTTP. errors.Is walks the
// wrap chain (fmt.Errorf("...: %w", err)) down to the sentinel, so a
// NotFound raised three layers deep still becomes a 404 here.
//
// Upstream failures carry the status the store or catalog answered with.
// The detail stays in the logs; the user sees "Something broke!".
func classify(err error) (int, string, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// NEVER expose raw error text: it may contain URLs or credentials.
		return http.StatusInternalServerError, "internal_error", "An internal error occurred"
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error", appErr.Message
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", appErr.Message
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden", appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found", appErr.Message
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict", appErr.Message
	case errors.Is(err, apperror.ErrUpstream):
		status := http.StatusBadGateway
		if appErr.Status >= 400 {
			status = appErr.Status
		}
		return status, "upstream_error", genericUpstreamMessage
	case errors.Is(err, apperror.ErrPartialFailure):
		return http.StatusInternalServerError, "partial_failure", genericUpstreamMessage
	}
	return http.StatusInternalServerError, "internal_error", "An internal error occurred"
}

// readForm returns the fields of an AJAX request body.
//
// The list page scripts send url-encoded bodies on POST, PUT and DELETE.
// r.ParseForm ignores the body of a DELETE, so the body is read and parsed
// here for every method. A JSON object is accepted too; its values are
// converted to strings.
func readForm(r *http.Request) (url.Values, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes+1))
	if err != nil {
		return nil, apperror.ValidationFailed("body", "could not read request body")
	}
	if len(body) > maxFormBytes {
		return nil, apperror.ValidationFailed("body", "request body is too large")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return jsonForm(body)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperror.ValidationFailed("body", "malformed form body")
	}
	return values, nil
}

func jsonForm(body []byte) (url.Values, error) {
	values := url.Values{}
	if len(body) == 0 {
		return values, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperror.ValidationFailed("body", "malformed JSON body")
	}
	for key, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			values.Set(key, v)
		case float64:
			values.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			values.Set(key, strconv.FormatBool(v))
		default:
			return nil, apperror.ValidationFailed(key, fmt.Sprintf("%s must be a string", key))
		}
	}
	return values, nil
}

// parsePage reads ?page=. A missing value means the first page.
func parsePage(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed("page", "page must be a number")
	}
	return page, nil
}
