package users

import (
	"context"

	"supergraph/graph/exec"
	"supergraph/graph/model"
	"supergraph/security"
	"supergraph/services/user"
)

// Users is the resolver for the users field.
func (r *queryResolver) Users(ctx context.Context, obj any, args map[string]any) (any, error) {
	return r.users.FindAll(ctx), nil
}

// User is the resolver for the user field.
func (r *queryResolver) User(ctx context.Context, obj any, args map[string]any) (any, error) {
	return r.users.FindByID(ctx, exec.StringArg(args, "id"))
}

// Me is the resolver for the me field.
func (r *queryResolver) Me(ctx context.Context, obj any, args map[string]any) (any, error) {
	p, err := security.CurrentPrincipal(ctx)
	if err != nil {
		return nil, nil
	}
	return r.users.FindByID(ctx, p.ID)
}

// CreateUser is the resolver for the createUser field.
func (r *mutationResolver) CreateUser(ctx context.Context, obj any, args map[string]any) (any, error) {
	var input model.CreateUserInput
	if err := exec.DecodeArg(args, "createUserInput", &input); err != nil {
		return nil, err
	}

	return r.users.Create(ctx, user.CreateInput{
		ID:       input.ID,
		Email:    input.Email,
		Password: input.Password,
	})
}
