// Package identity builds the request-scoped identity context at the gateway
// and carries it to subgraphs in the identity-signal header.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SignalHeader is the header that carries the serialized identity on every
// gateway -> subgraph request
const SignalHeader = "identity-signal"

// noIdentity is the explicit "no identity" marker on the wire
const noIdentity = "null"

// Principal is the authenticated caller
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Context is the identity context of one request. It is built once per
// request, never mutated and never shared between requests.
type Context struct {
	present   bool
	principal Principal
}

// Anonymous is the context of a request that carries no identity
var Anonymous = Context{}

// NewContext returns a present identity context for p
func NewContext(p Principal) Context {
	return Context{present: true, principal: p}
}

// Present reports whether the request carries an identity
func (c Context) Present() bool {
	return c.present
}

// Principal returns a copy of the principal, nil when absent
func (c Context) Principal() *Principal {
	if !c.present {
		return nil
	}
	p := c.principal
	return &p
}

// Encode serializes the context for the identity-signal header:
// principal JSON when present, null otherwise
func Encode(c Context) string {
	if !c.present {
		return noIdentity
	}
	data, err := json.Marshal(c.principal)
	if err != nil {
		// Principal only holds strings
		return noIdentity
	}
	return string(data)
}

// Decode parses an identity-signal header value. An empty value or null
// decodes to Anonymous.
func Decode(signal string) (Context, error) {
	signal = strings.TrimSpace(signal)
	if signal == "" || signal == noIdentity {
		return Anonymous, nil
	}

	var p Principal
	if err := json.Unmarshal([]byte(signal), &p); err != nil {
		return Anonymous, fmt.Errorf("decode %s: %w", SignalHeader, err)
	}
	if p.ID == "" {
		return Anonymous, fmt.Errorf("decode %s: principal without id", SignalHeader)
	}
	return NewContext(p), nil
}

type contextKey struct{}

// WithContext stores the identity context in ctx
func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the identity context stored in ctx or Anonymous
func FromContext(ctx context.Context) Context {
	if c, ok := ctx.Value(contextKey{}).(Context); ok {
		return c
	}
	return Anonymous
}
