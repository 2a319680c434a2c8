package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"supergraph/identity"
	"supergraph/middleware"
	"supergraph/utils"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// Handler serves client operations. The identity context is built before
// anything else; a rejected request never reaches a subgraph.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		idCtx, err := g.identity.Build(ctx, r.Header)
		if err != nil {
			utils.Logger.Debug("Request rejected",
				zap.String("request_id", middleware.RequestIDFromContext(ctx)),
				zap.Error(err),
			)
			writeError(ctx, w, http.StatusUnauthorized, newError(ctx, CodeUnauthenticated, messageUnauthenticated, nil, nil, nil))
			return
		}

		current := g.current.Load()
		if current == nil {
			writeError(ctx, w, http.StatusServiceUnavailable, newError(ctx, CodeSupergraphNotReady, messageSupergraphMissing, nil, nil, nil))
			return
		}

		current.srv.ServeHTTP(w, r.WithContext(identity.WithContext(ctx, idCtx)))
	})
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err *gqlerror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(&graphql.Response{Errors: gqlerror.List{err}}); encErr != nil {
		utils.Logger.Warn("Failed to write response",
			zap.String("request_id", middleware.RequestIDFromContext(ctx)),
			zap.Error(encErr),
		)
	}
}
