package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supergraph/database"
	"supergraph/graph/model"
	"supergraph/security"
	"supergraph/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput wraps every validation failure of Create
var ErrInvalidInput = errors.New("invalid user input")

// CreateInput is the payload of Create
type CreateInput struct {
	ID       string
	Email    string
	Password string
}

// UserService owns the users store
type UserService struct {
	store *database.Store[model.User]
	cost  int
}

// NewUserService creates the service over an empty store
func NewUserService() *UserService {
	return &UserService{
		store: database.NewStore("user", func(u model.User) string { return u.ID }),
		cost:  bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// Create validates the input, hashes the password and stores the user
func (s *UserService) Create(ctx context.Context, input CreateInput) (*model.User, error) {
	id := strings.TrimSpace(input.ID)
	email := strings.TrimSpace(input.Email)
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, utils.T(ctx, "error.user.id_required"))
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, utils.T(ctx, "error.user.email_invalid"))
	}

	var hash []byte
	if input.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	created, err := s.store.Create(model.User{ID: id, Email: email, PasswordHash: hash})
	if err != nil {
		if database.IsKeyCollision(err) {
			return nil, fmt.Errorf("%s: %w", utils.T(ctx, "error.user.exists"), err)
		}
		return nil, err
	}

	utils.Logger.Info("User created",
		zap.String("user_id", created.ID),
		zap.String("caller_id", security.CallerID(ctx)),
	)

	return &created, nil
}

// FindAll returns every user in creation order
func (s *UserService) FindAll(ctx context.Context) []*model.User {
	all := s.store.FindAll()
	out := make([]*model.User, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out
}

// FindByID returns nil, nil when no user has the id
func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.store.FindByKey(id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// FindByIDs is the batch lookup used for reference resolution.
// The result is aligned with ids; unknown ids yield nil.
func (s *UserService) FindByIDs(ctx context.Context, ids []string) []*model.User {
	out := make([]*model.User, len(ids))
	for i, id := range ids {
		if u, err := s.store.FindByKey(id); err == nil {
			out[i] = &u
		}
	}
	return out
}

// CheckPassword reports whether password matches the stored hash of the user
func (s *UserService) CheckPassword(ctx context.Context, id, password string) bool {
	u, err := s.store.FindByKey(id)
	if err != nil || len(u.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}
