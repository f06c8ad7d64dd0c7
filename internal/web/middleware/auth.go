package middleware

import (
	"net/http"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/web/auth"
	"github.com/conduit-lang/taskprovider/internal/web/response"
)

// mutating lists the methods RequireToken guards
var mutating = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// RequireToken rejects mutating requests that lack a valid bearer token with
// the write scope. Reads pass through untouched. A nil service disables the
// check.
func RequireToken(service *auth.TokenService) Middleware {
	return func(next http.Handler) http.Handler {
		if service == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := service.Validate(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}
			if !claims.HasScope(auth.ScopeWrite) {
				response.RenderForbidden(w, "Token does not grant write access")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
