// Package operations exposes the fleet operation service over HTTP.
package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/core/oplog"
	"github.com/kilianp07/ocppfleet/core/task"
)

// MaxWait bounds the ?wait parameter of the status endpoint.
const MaxWait = 5 * time.Minute

// Operations is the subset of dispatch.Service used by the handlers.
type Operations interface {
	StartOperation(ctx context.Context, action ocpp.Action, targets []string, payload json.RawMessage) (task.ID, error)
	OperationStatus(id task.ID) (task.Snapshot, error)
	AwaitOperation(ctx context.Context, id task.ID) (task.Snapshot, error)
	Actions() []ocpp.Action
	Timeout(action ocpp.Action) time.Duration
}

// StartRequest is the body of POST /api/operations.
type StartRequest struct {
	Action       string          `json:"action"`
	ChargeBoxIDs []string        `json:"charge_box_ids"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// StartResponse is returned once the operation is queued.
type StartResponse struct {
	TaskID string `json:"task_id"`
}

// ActionInfo describes a supported action.
type ActionInfo struct {
	Action  string `json:"action"`
	Timeout string `json:"timeout"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewRouter returns the /api/operations routes. store may be nil, in which
// case the logs endpoint answers 404. When token is non-empty every request
// must carry "Authorization: Bearer <token>".
func NewRouter(ops Operations, store oplog.Store, token string) http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	api := r.PathPrefix("/api/operations").Subrouter()
	api.HandleFunc("", startHandler(ops)).Methods(http.MethodPost)
	api.HandleFunc("/actions", actionsHandler(ops)).Methods(http.MethodGet)
	if store != nil {
		api.Handle("/logs", NewLogHandler(store)).Methods(http.MethodGet)
	}
	api.HandleFunc("/{id}", statusHandler(ops)).Methods(http.MethodGet)
	if token != "" {
		r.Use(bearerAuth(token))
	}
	return r
}

func bearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				replyError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func startHandler(ops Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			replyError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if req.Action == "" {
			replyError(w, http.StatusBadRequest, "action is required")
			return
		}
		id, err := ops.StartOperation(r.Context(), ocpp.Action(req.Action), req.ChargeBoxIDs, req.Payload)
		if err != nil {
			replyError(w, statusFor(err), err.Error())
			return
		}
		w.Header().Set("Location", "/api/operations/"+string(id))
		replyJSON(w, http.StatusAccepted, StartResponse{TaskID: string(id)})
	}
}

func statusHandler(ops Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := task.ID(mux.Vars(r)["id"])
		var (
			snap task.Snapshot
			err  error
		)
		if raw := r.URL.Query().Get("wait"); raw != "" {
			wait, perr := time.ParseDuration(raw)
			if perr != nil || wait < 0 {
				replyError(w, http.StatusBadRequest, fmt.Sprintf("invalid wait %q", raw))
				return
			}
			if wait > MaxWait {
				wait = MaxWait
			}
			ctx, cancel := context.WithTimeout(r.Context(), wait)
			defer cancel()
			snap, err = ops.AwaitOperation(ctx, id)
		} else {
			snap, err = ops.OperationStatus(id)
		}
		if err != nil {
			replyError(w, statusFor(err), err.Error())
			return
		}
		replyJSON(w, http.StatusOK, snap)
	}
}

func actionsHandler(ops Operations) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		actions := ops.Actions()
		out := make([]ActionInfo, len(actions))
		for i, a := range actions {
			out[i] = ActionInfo{Action: string(a), Timeout: ops.Timeout(a).String()}
		}
		replyJSON(w, http.StatusOK, out)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidArgument), errors.Is(err, dispatch.ErrUnsupportedAction):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrExecutorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func replyJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func replyError(w http.ResponseWriter, status int, msg string) {
	replyJSON(w, status, errorResponse{Message: msg})
}
