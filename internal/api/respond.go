package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/soaringjerry/intake/internal/services"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorValidation, services.ErrorConfig:
		return http.StatusUnprocessableEntity
	case services.ErrorInvalid, services.ErrorInvalidReference:
		return http.StatusBadRequest
	case services.ErrorState, services.ErrorDuplicate:
		return http.StatusConflict
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), errorBody{Error: string(se.Code), Message: se.Message, Field: se.Field})
		return
	}
	if logger != nil {
		logger.Printf("api: internal error: %v", err)
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("invalid json: " + err.Error())
	}
	return nil
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
