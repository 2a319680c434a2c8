package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthenticated is matched by every error returned from Builder.Build
var ErrUnauthenticated = errors.New("unauthenticated")

// AuthError describes why a request was rejected
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthenticated: %s: %v", e.Reason, e.Err)
	}
	return "unauthenticated: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnauthenticated) hold for every AuthError
func (e *AuthError) Is(target error) bool { return target == ErrUnauthenticated }

// IsUnauthenticated reports whether err rejects the request
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// Verifier turns a credential signal into a principal
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}

// Builder is the identity context builder: it runs once per inbound request
// and either produces an identity context or rejects the request.
type Builder struct {
	header   string
	verifier Verifier
}

// NewBuilder creates a builder that reads the credential from header
func NewBuilder(header string, verifier Verifier) *Builder {
	if header == "" {
		header = "Authorization"
	}
	return &Builder{header: header, verifier: verifier}
}

// Header returns the credential header name
func (b *Builder) Header() string {
	return b.header
}

// Build inspects the credential header. It has no side effects.
func (b *Builder) Build(ctx context.Context, headers http.Header) (Context, error) {
	credential := strings.TrimSpace(headers.Get(b.header))
	if credential == "" {
		return Anonymous, &AuthError{Reason: fmt.Sprintf("%s header is missing", b.header)}
	}

	principal, err := b.verifier.Verify(ctx, credential)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return Anonymous, authErr
		}
		return Anonymous, &AuthError{Reason: "credential rejected", Err: err}
	}
	if principal == nil || principal.ID == "" {
		return Anonymous, &AuthError{Reason: "credential has no subject"}
	}

	return NewContext(*principal), nil
}
