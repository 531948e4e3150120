package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-pm/keystone/internal/platform/httpx"
)

// IntrospectionHandler lets an authenticated caller inspect its own
// effective authority: role, inherited roles, resolved permissions.
type IntrospectionHandler struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewIntrospectionHandler builds the handler.
func NewIntrospectionHandler(logger *slog.Logger, resolver *Resolver) *IntrospectionHandler {
	return &IntrospectionHandler{logger: logger, resolver: resolver}
}

// MountRoutes registers introspection routes.
func (h *IntrospectionHandler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.showPermissions)
}

type introspectionResponse struct {
	Identity       string       `json:"identity"`
	Role           Role         `json:"role"`
	InheritedRoles []Role       `json:"inherited_roles"`
	Permissions    []Permission `json:"permissions"`
}

func (h *IntrospectionHandler) showPermissions(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFromContext(r.Context())
	if ident == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated identity")
		return
	}
	httpx.JSON(w, http.StatusOK, introspectionResponse{
		Identity:       ident.ID,
		Role:           ident.Role,
		InheritedRoles: h.resolver.InheritedRoles(ident.Role),
		Permissions:    h.resolver.ResolvePermissions(ident.Role),
	})
}
