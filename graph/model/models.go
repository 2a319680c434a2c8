// Package model holds the GraphQL-facing records of both subgraphs.
package model

// User is the users subgraph's entity. PasswordHash never leaves the service.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"-"`
}

// TypeName returns the GraphQL type name
func (*User) TypeName() string { return "User" }

// IsEntity marks User as a federation entity
func (*User) IsEntity() {}

// Post is the posts subgraph's entity
type Post struct {
	ID       string `json:"id"`
	Body     string `json:"body"`
	AuthorID string `json:"authorId"`
}

// TypeName returns the GraphQL type name
func (*Post) TypeName() string { return "Post" }

// IsEntity marks Post as a federation entity
func (*Post) IsEntity() {}

// UserRef is a federation stub for the User entity owned by the users service.
// The posts subgraph only knows the id; the gateway resolves the rest.
type UserRef struct {
	ID string `json:"id"`
}

// TypeName returns the GraphQL type name
func (*UserRef) TypeName() string { return "User" }

// IsEntity marks UserRef as a federation entity
func (*UserRef) IsEntity() {}

// CreateUserInput is the input of the createUser mutation
type CreateUserInput struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreatePostInput is the input of the createPost mutation
type CreatePostInput struct {
	ID       string `json:"id"`
	Body     string `json:"body"`
	AuthorID string `json:"authorId"`
}
