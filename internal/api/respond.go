package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/model"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case model.IsUnknownSource(err):
		return http.StatusNotFound
	case model.IsDuplicateSource(err), model.IsTransition(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(field, "must be a positive integer, got %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(key, "not an integer: %q", raw)
	}
	return n, nil
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, model.NewValidationError(key, "not a number: %q", raw)
	}
	return f, nil
}
