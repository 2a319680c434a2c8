package identity

import (
	"context"

	"supergraph/utils"
)

// PlaceholderPrincipalID is the identity fabricated by PresenceVerifier
const PlaceholderPrincipalID = "placeholder-user"

// PresenceVerifier treats any non-empty credential as authenticated and maps
// it to a fixed placeholder principal. It performs no verification and exists
// for local development only (AUTH_MODE=presence).
type PresenceVerifier struct{}

// NewPresenceVerifier creates the placeholder verifier and logs a warning
func NewPresenceVerifier() *PresenceVerifier {
	utils.Logger.Warn("AUTH_MODE=presence: credentials are NOT verified, every request with the auth header is accepted")
	return &PresenceVerifier{}
}

// Verify accepts any non-empty credential
func (PresenceVerifier) Verify(_ context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, &AuthError{Reason: "empty credential"}
	}
	return &Principal{ID: PlaceholderPrincipalID}, nil
}
