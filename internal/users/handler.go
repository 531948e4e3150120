package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-pm/keystone/internal/authz"
	"github.com/keystone-pm/keystone/internal/platform/httpx"
)

// Handler exposes account management endpoints. Access is enforced by
// the route policy for /users, not here.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
}

type userView struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           authz.Role `json:"role"`
	IsActive       bool       `json:"is_active"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, user := range users {
		view := userView{
			ID:             user.ID,
			Email:          user.Email,
			Name:           user.Name,
			Role:           user.Role,
			IsActive:       user.IsActive,
			FailedAttempts: user.FailedAttempts,
		}
		if !user.LockedUntil.IsZero() {
			lockedUntil := user.LockedUntil
			view.LockedUntil = &lockedUntil
		}
		views = append(views, view)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views})
}
