// Package users is the users subgraph: it owns the User entity.
package users

import (
	_ "embed"

	"supergraph/graph/directives"
	"supergraph/graph/exec"
	"supergraph/graph/federation"
	"supergraph/services/user"
)

//go:embed schema.graphql
var SDL string

// Resolver is the resolver root
type Resolver struct {
	users *user.UserService
}

// NewResolver wires the resolvers to the user service
func NewResolver(users *user.UserService) *Resolver {
	return &Resolver{users: users}
}

// NewSubgraph builds the executable users subgraph
func NewSubgraph(users *user.UserService) (*federation.Subgraph, error) {
	r := NewResolver(users)

	sg, err := federation.NewSubgraph(SDL, federation.Config{
		Resolvers: exec.Resolvers{
			"Query": {
				"users": r.Query().Users,
				"user":  r.Query().User,
				"me":    r.Query().Me,
			},
			"Mutation": {
				"createUser": r.Mutation().CreateUser,
			},
		},
		Entities: map[string]federation.EntityResolver{
			"User": r.Entity().FindUsersByIDs,
		},
		Directives: directives.All(),
	})
	if err != nil {
		return nil, err
	}

	sg.AroundOperations(exec.LoggingMiddleware("users"))
	return sg, nil
}

// Query returns the Query field resolvers
func (r *Resolver) Query() *queryResolver { return &queryResolver{r} }

// Mutation returns the Mutation field resolvers
func (r *Resolver) Mutation() *mutationResolver { return &mutationResolver{r} }

// Entity returns the federation entity resolvers
func (r *Resolver) Entity() *entityResolver { return &entityResolver{r} }

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }
type entityResolver struct{ *Resolver }
