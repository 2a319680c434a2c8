// Package server builds the HTTP routers of the gateway and of the subgraph
// services.
package server

import (
	"net/http"

	"supergraph/gateway"
	"supergraph/graph/exec"
	"supergraph/middleware"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// corsAllowedHeaders are the request headers browsers may send to the gateway
var corsAllowedHeaders = []string{
	"Accept",
	"Accept-Language",
	"Authorization",
	"Content-Type",
	middleware.RequestIDHeader,
}

func newRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   corsAllowedHeaders,
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestLoggingMiddleware)
	r.Use(middleware.LocaleMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// NewGatewayRouter serves client operations on /query
func NewGatewayRouter(gw *gateway.Gateway, production bool) *chi.Mux {
	r := newRouter()

	// Playground и отладочный лог заголовков только для не-продакшн окружения
	if !production {
		r.Handle("/", playground.Handler("Supergraph playground", "/query"))
		r.With(middleware.HTTPHeadersLoggingMiddleware).Handle("/query", gw.Handler())
		return r
	}
	r.Handle("/query", gw.Handler())

	return r
}

// NewSubgraphRouter serves a subgraph schema on /graphql. The identity
// context comes from the gateway's signal header.
func NewSubgraphRouter(schema *exec.Schema) *chi.Mux {
	r := newRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.IdentityMiddleware)
		r.Handle("/graphql", exec.NewServer(schema))
	})

	return r
}
