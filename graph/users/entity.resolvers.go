package users

import (
	"context"

	"supergraph/graph/federation"
)

// FindUsersByIDs resolves User representations. It is a pure lookup;
// unknown ids resolve to null.
func (r *entityResolver) FindUsersByIDs(ctx context.Context, reps []federation.Representation) ([]any, error) {
	ids := make([]string, len(reps))
	for i, rep := range reps {
		ids[i] = rep.Key("id")
	}

	found := r.users.FindByIDs(ctx, ids)
	out := make([]any, len(found))
	for i, u := range found {
		if u != nil {
			out[i] = u
		}
	}
	return out, nil
}
