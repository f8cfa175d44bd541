package api

import (
	"context"
	"net/http"

	"github.com/btouchard/taskpulse/internal/auth"
	"github.com/btouchard/taskpulse/internal/user"
)

type UserService interface {
	Create(ctx context.Context, in user.CreateInput) (*user.User, error)
	Get(ctx context.Context, id int64) (*user.User, error)
}

func createUser(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in user.CreateInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := svc.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func getUser(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		u, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func currentUser(svc UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.UserIDFromContext(r.Context())
		u, err := svc.Get(r.Context(), callerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
