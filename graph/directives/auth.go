// Package directives holds field directive handlers shared by the subgraphs
package directives

import (
	"context"

	"supergraph/graph/exec"
	"supergraph/security"

	"github.com/99designs/gqlgen/graphql"
)

// AuthDirective declares @auth for subgraph SDL
const AuthDirective = "directive @auth on FIELD_DEFINITION"

// Auth директива для проверки, что gateway передал идентичность пользователя
func Auth(ctx context.Context, obj interface{}, next graphql.Resolver) (interface{}, error) {
	if err := security.ValidateAuthAccess(ctx); err != nil {
		return nil, err
	}

	return next(ctx)
}

// All returns the handlers keyed by directive name
func All() map[string]exec.DirectiveHandler {
	return map[string]exec.DirectiveHandler{
		"auth": Auth,
	}
}
