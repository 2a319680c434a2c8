// Package posts is the posts subgraph: it owns Post and the User.posts
// relationship.
package posts

import (
	"context"
	_ "embed"

	"supergraph/graph/dataloader"
	"supergraph/graph/directives"
	"supergraph/graph/exec"
	"supergraph/graph/federation"
	"supergraph/services/post"

	"github.com/99designs/gqlgen/graphql"
)

//go:embed schema.graphql
var SDL string

// Resolver is the resolver root
type Resolver struct {
	posts *post.PostService
}

// NewResolver wires the resolvers to the post service
func NewResolver(posts *post.PostService) *Resolver {
	return &Resolver{posts: posts}
}

// NewSubgraph builds the executable posts subgraph
func NewSubgraph(posts *post.PostService) (*federation.Subgraph, error) {
	r := NewResolver(posts)

	sg, err := federation.NewSubgraph(SDL, federation.Config{
		Resolvers: exec.Resolvers{
			"Query": {
				"posts": r.Query().Posts,
				"post":  r.Query().Post,
			},
			"Mutation": {
				"createPost": r.Mutation().CreatePost,
			},
			"Post": {
				"user": r.Post().User,
			},
			"User": {
				"posts": r.User().Posts,
			},
		},
		Entities: map[string]federation.EntityResolver{
			"Post": r.Entity().FindPostsByIDs,
			"User": r.Entity().FindUsersByIDs,
		},
		Directives: directives.All(),
	})
	if err != nil {
		return nil, err
	}

	// Инициализируем DataLoader на каждую операцию
	sg.AroundOperations(func(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
		return next(dataloader.WithLoaders(ctx, dataloader.NewLoaders(posts)))
	})
	sg.AroundOperations(exec.LoggingMiddleware("posts"))

	return sg, nil
}

// Query returns the Query field resolvers
func (r *Resolver) Query() *queryResolver { return &queryResolver{r} }

// Mutation returns the Mutation field resolvers
func (r *Resolver) Mutation() *mutationResolver { return &mutationResolver{r} }

// Post returns the Post field resolvers
func (r *Resolver) Post() *postResolver { return &postResolver{r} }

// User returns the User field resolvers
func (r *Resolver) User() *userResolver { return &userResolver{r} }

// Entity returns the federation entity resolvers
func (r *Resolver) Entity() *entityResolver { return &entityResolver{r} }

type queryResolver struct{ *Resolver }
type mutationResolver struct{ *Resolver }
type postResolver struct{ *Resolver }
type userResolver struct{ *Resolver }
type entityResolver struct{ *Resolver }
