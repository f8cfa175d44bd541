package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/taskpulse/internal/auth"
	"github.com/btouchard/taskpulse/internal/task"
)

// TaskService is the slice of task.Service the HTTP layer drives.
type TaskService interface {
	Create(ctx context.Context, in task.CreateInput, creatorID int64) (*task.Task, error)
	Get(ctx context.Context, id int64) (*task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	Update(ctx context.Context, id int64, patch task.Patch) (*task.Task, error)
	UpdateStatus(ctx context.Context, id int64, status task.Status) (*task.Task, error)
	Remove(ctx context.Context, id int64) error
	FindByCreator(ctx context.Context, userID int64) ([]task.Task, error)
	FindByAssignee(ctx context.Context, userID int64) ([]task.Task, error)
}

type statusRequest struct {
	Status string `json:"status"`
}

func registerTaskRoutes(r chi.Router, svc TaskService) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", createTask(svc))
		r.Get("/", listTasks(svc))
		r.Get("/user/created", tasksCreatedByCaller(svc))
		r.Get("/user/assigned", tasksAssignedToCaller(svc))
		r.Get("/{id}", getTask(svc))
		r.Patch("/{id}", updateTask(svc))
		r.Patch("/{id}/status", updateTaskStatus(svc))
		r.Delete("/{id}", deleteTask(svc))
	})
}

func createTask(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in task.CreateInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}

		callerID, _ := auth.UserIDFromContext(r.Context())
		t, err := svc.Create(r.Context(), in, callerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func listTasks(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := svc.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func tasksCreatedByCaller(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.UserIDFromContext(r.Context())
		tasks, err := svc.FindByCreator(r.Context(), callerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func tasksAssignedToCaller(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.UserIDFromContext(r.Context())
		tasks, err := svc.FindByAssignee(r.Context(), callerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func getTask(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func updateTask(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var patch task.Patch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func updateTaskStatus(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req statusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		status, err := task.ParseStatus(req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.UpdateStatus(r.Context(), id, status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTask(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := svc.Remove(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
