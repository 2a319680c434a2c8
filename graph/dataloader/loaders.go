package dataloader

import (
	"context"
	"time"

	"supergraph/graph/model"
	"supergraph/services/post"
)

type ctxKey string

const (
	LoadersKey = ctxKey("dataloaders")
)

// Loaders holds the per-operation data loaders of the posts subgraph
type Loaders struct {
	// User.posts for every User stub of one _entities call
	PostsByAuthor *BatchLoader[string, []*model.Post]
}

// NewLoaders creates fresh loaders; call once per operation
func NewLoaders(posts *post.PostService) *Loaders {
	reader := &postsReader{posts: posts}

	return &Loaders{
		PostsByAuthor: NewBatchLoader(reader.postsByAuthors, 2*time.Millisecond, 100),
	}
}

type postsReader struct {
	posts *post.PostService
}

func (r *postsReader) postsByAuthors(ctx context.Context, authorIDs []string) ([][]*model.Post, []error) {
	return r.posts.ForAuthors(ctx, authorIDs), nil
}

// For returns the loaders from context or nil
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(LoadersKey).(*Loaders)
	return loaders
}

// WithLoaders stores the loaders in the context
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, LoadersKey, loaders)
}

// GetPostsByAuthor returns the posts of an author, batched with concurrent
// callers of the same operation. Without loaders in ctx it hits the service directly.
func GetPostsByAuthor(ctx context.Context, posts *post.PostService, authorID string) ([]*model.Post, error) {
	loaders := For(ctx)
	if loaders == nil {
		return posts.ForAuthor(ctx, authorID), nil
	}
	return loaders.PostsByAuthor.Load(ctx, authorID)
}
