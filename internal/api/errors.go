package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/apexai/apex/internal/classify"
	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// serviceError maps domain errors to HTTP status codes.
func serviceError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", describeValidation(verrs))
	case errors.Is(err, classify.ErrInvalidInput), errors.Is(err, session.ErrInvalidContact):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, classify.ErrAnalysisFailed):
		httpError(w, http.StatusBadGateway, "analysis_error", "analysis failed")
	case errors.Is(err, session.ErrAlreadyRegistered):
		httpError(w, http.StatusConflict, "conflict_error", "already registered")
	case errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusServiceUnavailable, "store_busy", "feedback store is busy, try again")
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "base64":
			parts = append(parts, field+" must be base64 encoded")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
