package post

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
)

// ErrInvalidInput wraps every validation failure of Create
var ErrInvalidInput = errors.New("invalid post input")

// CreateInput is the payload of Create
type CreateInput struct {
	ID       string
	Body     string
	AuthorID string
}

// PostService owns the posts store. The authorId relationship is resolved
// here, not in the users subgraph.
type PostService struct {
	store *database.Store[model.Post]
}

// NewPostService creates the service over an empty store
func NewPostService() *PostService {
	return &PostService{
		store: database.NewStore("post", func(p model.Post) string { return p.ID }),
	}
}

func authorOf(p model.Post) string { return p.AuthorID }

// Create validates the input and stores the post. The author is not checked
// against the users subgraph.
func (s *PostService) Create(ctx context.Context, input CreateInput) (*model.Post, error) {
	id := strings.TrimSpace(input.ID)
	authorID := strings.TrimSpace(input.AuthorID)
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, utils.T(ctx, "error.post.id_required"))
	}
	if authorID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, utils.T(ctx, "error.post.author_required"))
	}

	created, err := s.store.Create(model.Post{ID: id, Body: input.Body, AuthorID: authorID})
	if err != nil {
		if database.IsKeyCollision(err) {
			return nil, fmt.Errorf("%s: %w", utils.T(ctx, "error.post.exists"), err)
		}
		return nil, err
	}

	utils.Logger.Info("Post created",
		zap.String("post_id", created.ID),
		zap.String("author_id", created.AuthorID),
		zap.String("caller_id", security.CallerID(ctx)),
	)

	return &created, nil
}

// FindAll returns every post in creation order
func (s *PostService) FindAll(ctx context.Context) []*model.Post {
	return toPointers(s.store.FindAll())
}

// FindByID returns nil, nil when no post has the id
func (s *PostService) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.store.FindByKey(id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindByIDs is aligned with ids; unknown ids yield nil
func (s *PostService) FindByIDs(ctx context.Context, ids []string) []*model.Post {
	out := make([]*model.Post, len(ids))
	for i, id := range ids {
		if p, err := s.store.FindByKey(id); err == nil {
			out[i] = &p
		}
	}
	return out
}

// ForAuthor returns the posts of one author in creation order
func (s *PostService) ForAuthor(ctx context.Context, authorID string) []*model.Post {
	return toPointers(s.store.FindByForeignKey(authorOf, authorID))
}

// ForAuthors groups posts by author with a single scan of the store.
// The result is aligned with authorIDs.
func (s *PostService) ForAuthors(ctx context.Context, authorIDs []string) [][]*model.Post {
	grouped := s.store.FindByForeignKeys(authorOf, authorIDs)

	out := make([][]*model.Post, len(authorIDs))
	for i, id := range authorIDs {
		out[i] = toPointers(grouped[id])
	}
	return out
}

func toPointers(posts []model.Post) []*model.Post {
	out := make([]*model.Post, len(posts))
	for i := range posts {
		out[i] = &posts[i]
	}
	return out
}
