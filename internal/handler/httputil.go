package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/analysis"
	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/storage"
)

// Error codes of the JSON error body.
const (
	CodeInvalidID      = "INVALID_ID"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidBody    = "INVALID_BODY"
	CodeInvalidValue   = "INVALID_VALUE"
	CodeAnalysisFailed = "ANALYSIS_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// writeJSON marshals v as JSON and writes it with the given status code.
// A value that cannot be encoded turns into a 500 INTERNAL_ERROR body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("handler: encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{
			"error": "failed to encode response",
			"code":  CodeInternal,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		zap.L().Debug("handler: write response", zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseUUID extracts and validates a UUID path parameter.
func parseUUID(w http.ResponseWriter, r *http.Request, paramName string) (string, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidID, "invalid UUID: "+raw)
		return "", false
	}
	return id.String(), true
}

// parseLimit reads the "limit" query parameter, capped at max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// errorToHTTP maps domain errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, fields.ErrInvalidValue), errors.Is(err, storage.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, CodeInvalidValue, err.Error())
	case errors.Is(err, analysis.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error())
	default:
		zap.L().Error("handler: internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
