package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meatflow/meatflow/internal/platform/httpx"
	"github.com/meatflow/meatflow/internal/shared"
)

// Middleware authenticates requests and enforces the static permission table.
type Middleware struct {
	logger  *slog.Logger
	service *Service
}

// NewMiddleware builds the auth middleware.
func NewMiddleware(logger *slog.Logger, service *Service) Middleware {
	return Middleware{logger: logger, service: service}
}

// Authenticate resolves the bearer token into an actor on the request
// context. Requests without a token pass through unauthenticated; permission
// checks downstream reject them.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := m.service.Lookup(r.Context(), token)
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// Require rejects requests whose actor lacks the permission.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !actor.Role.HasPermission(perm) {
				m.logger.Warn("permission denied",
					slog.Int64("actor_id", actor.ID),
					slog.String("role", string(actor.Role)),
					slog.String("permission", perm))
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
