package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Tzesh/EcommerceAPI/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// whatever is known at this point of the chain: correlation ID, username and
// trace/span IDs. Handlers fetch it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing. Routes behind Auth should mount
// it again after Auth so the username is included.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if u := UsernameFromContext(ctx); u != "" && logger.UsernameFromContext(ctx) == "" {
				ctx = logger.WithUsername(ctx, u)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
