package security

import (
	"context"
	"errors"

	"supergraph/identity"
)

// ErrNotAuthenticated is returned when the gateway forwarded no identity
var ErrNotAuthenticated = errors.New("you are not authenticated")

// ValidateAuthAccess проверяет, что gateway передал идентичность пользователя
func ValidateAuthAccess(ctx context.Context) error {
	if !identity.FromContext(ctx).Present() {
		return ErrNotAuthenticated
	}
	return nil
}

// CurrentPrincipal returns the forwarded principal or ErrNotAuthenticated
func CurrentPrincipal(ctx context.Context) (*identity.Principal, error) {
	p := identity.FromContext(ctx).Principal()
	if p == nil {
		return nil, ErrNotAuthenticated
	}
	return p, nil
}

// CallerID returns the forwarded principal id or "" for anonymous requests
func CallerID(ctx context.Context) string {
	if p := identity.FromContext(ctx).Principal(); p != nil {
		return p.ID
	}
	return ""
}
