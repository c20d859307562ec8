package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
	"github.com/Tzesh/EcommerceAPI/pkg/httputil"
	"github.com/Tzesh/EcommerceAPI/pkg/logger"
)

type principalKey struct{}

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Username string
	Role     string
}

// TokenValidator checks a bearer token and resolves the caller it belongs to.
type TokenValidator func(ctx context.Context, token string) (*Principal, error)

// BearerToken extracts the token from an Authorization header value.
// The scheme must be exactly "Bearer" followed by a single space.
func BearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token and stores the resolved
// Principal in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteError(w, r, apperrors.InvalidToken("missing authorization header"), nil)
				return
			}

			token, ok := BearerToken(header)
			if !ok {
				httputil.WriteError(w, r, apperrors.InvalidToken("invalid authorization header format"), nil)
				return
			}

			p, err := validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.WithUsername(ctx, p.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only if the caller holds one of roles.
// It must be mounted after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// UsernameFromContext returns the authenticated username, or "".
func UsernameFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Username
	}
	return ""
}

// RoleFromContext returns the authenticated role, or "".
func RoleFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Role
	}
	return ""
}
