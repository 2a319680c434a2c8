package middleware

import (
	"net/http"

	"supergraph/identity"
	"supergraph/utils"

	"go.uber.org/zap"
)

// IdentityMiddleware decodes the identity-signal header forwarded by the
// gateway into the request context. A malformed signal is treated as no
// identity; subgraphs never re-authenticate the caller.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idCtx, err := identity.Decode(r.Header.Get(identity.SignalHeader))
		if err != nil {
			utils.Logger.Warn("Ignoring malformed identity signal",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}

		ctx := identity.WithContext(r.Context(), idCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
