// Package enrollment lets the account and application flows start email
// workflows for signup and application triggers.
package enrollment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
)

// Path is the enrollment endpoint.
const Path = "/internal/enrollments"

const maxBodyBytes = 4 << 10

// Enroller starts workflows. *workflow.Engine implements it.
type Enroller interface {
	Enroll(ctx context.Context, userID uuid.UUID, trigger workflow.Trigger) (int, error)
}

// Users confirms the enrolled user exists.
type Users interface {
	Get(ctx context.Context, id uuid.UUID) (user.User, error)
}

type request struct {
	UserID  uuid.UUID        `json:"user_id"`
	Trigger workflow.Trigger `json:"trigger"`
}

type Handler struct {
	enroller Enroller
	users    Users
	token    string
	logger   *slog.Logger
}

// NewHandler requires a non-empty bearer token; callers send it as
// "Authorization: Bearer <token>".
func NewHandler(enroller Enroller, users Users, token string, log *slog.Logger) *Handler {
	if enroller == nil || users == nil {
		panic("enrollment: enroller and users are required")
	}
	if token == "" {
		panic("enrollment: token is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{enroller: enroller, users: users, token: token, logger: log}
}

// Mount registers the endpoint on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post(Path, h.ServeHTTP)
}

// ServeHTTP answers 401 without the token, 400 for bad input or a
// billing-driven trigger, 404 for an unknown user and 200 with the number of
// new enrollments otherwise.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.With(logger.Component("enrollment"))

	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil || !req.Trigger.External() {
		http.Error(w, "user_id and a signup or application trigger are required", http.StatusBadRequest)
		return
	}

	if _, err := h.users.Get(ctx, req.UserID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.ErrorContext(ctx, "user lookup failed", logger.UserID(req.UserID), logger.Error(err))
		http.Error(w, "enrollment failed", http.StatusInternalServerError)
		return
	}

	n, err := h.enroller.Enroll(ctx, req.UserID, req.Trigger)
	if err != nil {
		log.ErrorContext(ctx, "enrollment failed",
			logger.UserID(req.UserID),
			slog.String("trigger", string(req.Trigger)),
			logger.Error(err),
		)
		http.Error(w, "enrollment failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"enrolled": n})
}

func (h *Handler) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
