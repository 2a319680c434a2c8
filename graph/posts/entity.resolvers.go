package posts

import (
	"context"

	"supergraph/graph/dataloader"
	"supergraph/graph/federation"
	"supergraph/graph/model"
)

// FindPostsByIDs resolves Post representations; unknown ids resolve to null
func (r *entityResolver) FindPostsByIDs(ctx context.Context, reps []federation.Representation) ([]any, error) {
	ids := make([]string, len(reps))
	for i, rep := range reps {
		ids[i] = rep.Key("id")
	}

	found := r.posts.FindByIDs(ctx, ids)
	out := make([]any, len(found))
	for i, p := range found {
		if p != nil {
			out[i] = p
		}
	}
	return out, nil
}

// FindUsersByIDs returns a stub User entity for federation resolution.
// The User data is owned by the users subgraph; the stub only carries the
// id so that User.posts can be resolved here.
func (r *entityResolver) FindUsersByIDs(ctx context.Context, reps []federation.Representation) ([]any, error) {
	out := make([]any, len(reps))
	for i, rep := range reps {
		out[i] = &model.UserRef{ID: rep.Key("id")}
	}
	return out, nil
}

// User is the resolver for the user field.
// Returns a stub User entity with the author id; the gateway resolves the
// rest from the users subgraph.
func (r *postResolver) User(ctx context.Context, obj any, args map[string]any) (any, error) {
	p := obj.(*model.Post)
	return &model.UserRef{ID: p.AuthorID}, nil
}

// Posts is the resolver for the posts field.
func (r *userResolver) Posts(ctx context.Context, obj any, args map[string]any) (any, error) {
	ref := obj.(*model.UserRef)
	return dataloader.GetPostsByAuthor(ctx, r.posts, ref.ID)
}
