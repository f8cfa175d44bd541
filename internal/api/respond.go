package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/taskpulse/internal/task"
	"github.com/btouchard/taskpulse/internal/user"
	"github.com/btouchard/taskpulse/internal/validate"
)

const maxBodyBytes = 1 << 20

type errResponse struct {
	Error   string                `json:"error"`
	Message string                `json:"message,omitempty"`
	Details []validate.FieldError `json:"details,omitempty"`
}

var errInvalidJSON = errors.New("invalid JSON body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// 500 whose detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validate.Errors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: "validation_error", Details: verrs})
	case errors.Is(err, errInvalidJSON):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json", Message: err.Error()})
	case errors.Is(err, task.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, task.ErrUnknownCreator):
		writeJSON(w, http.StatusForbidden, errResponse{Error: "unregistered_user", Message: "the authenticated user has no account; create one with POST /users"})
	case errors.Is(err, task.ErrUnknownAssignee):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:   "validation_error",
			Details: []validate.FieldError{{Field: "assigneeId", Message: "must reference an existing user"}},
		})
	case errors.Is(err, user.ErrConflict):
		writeJSON(w, http.StatusConflict, errResponse{Error: "conflict", Message: err.Error()})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, validate.Field(name, "must be a positive integer")
	}
	return id, nil
}
