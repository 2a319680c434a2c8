package posts

import (
	"context"

	"supergraph/graph/exec"
	"supergraph/graph/model"
	"supergraph/services/post"
)

// Posts is the resolver for the posts field.
func (r *queryResolver) Posts(ctx context.Context, obj any, args map[string]any) (any, error) {
	return r.posts.FindAll(ctx), nil
}

// Post is the resolver for the post field.
func (r *queryResolver) Post(ctx context.Context, obj any, args map[string]any) (any, error) {
	return r.posts.FindByID(ctx, exec.StringArg(args, "id"))
}

// CreatePost is the resolver for the createPost field.
func (r *mutationResolver) CreatePost(ctx context.Context, obj any, args map[string]any) (any, error) {
	var input model.CreatePostInput
	if err := exec.DecodeArg(args, "createPostInput", &input); err != nil {
		return nil, err
	}

	return r.posts.Create(ctx, post.CreateInput{
		ID:       input.ID,
		Body:     input.Body,
		AuthorID: input.AuthorID,
	})
}
