package gateway

import (
	"context"

	"supergraph/graph/exec"
	"supergraph/utils"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes set in extensions.code of client-visible errors
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeSubgraphUnreachable = "SUBGRAPH_UNREACHABLE"
	CodeSubgraphError       = "SUBGRAPH_ERROR"
	CodeValidationFailed    = exec.CodeValidationFailed
	CodeQueryPlanFailed     = "QUERY_PLAN_FAILED"
	CodeRequestCancelled    = "REQUEST_CANCELLED"
	CodeSupergraphNotReady  = "SUPERGRAPH_NOT_READY"
)

// message ids in locales/
const (
	messageUnauthenticated   = "error.unauthenticated"
	messageUnreachable       = "error.subgraph.unreachable"
	messageSubgraphError     = "error.subgraph.error"
	messageQueryPlanFailed   = "error.query_plan_failed"
	messageRequestCancelled  = "error.request_cancelled"
	messageSupergraphMissing = "error.supergraph_not_ready"
)

// PlanError is returned when a valid query cannot be split across subgraphs
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string { return "query plan failed: " + e.Reason }

// newError builds a localized client error
func newError(ctx context.Context, code, messageID string, path ast.Path, data utils.TemplateData, ext map[string]any) *gqlerror.Error {
	if ext == nil {
		ext = map[string]any{}
	}
	ext["code"] = code

	var msg string
	if data != nil {
		msg = utils.T(ctx, messageID, data)
	} else {
		msg = utils.T(ctx, messageID)
	}

	return &gqlerror.Error{Message: msg, Path: path, Extensions: ext}
}
