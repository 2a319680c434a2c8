package gateway

import (
	"context"
	"errors"

	"supergraph/graph/exec"
	"supergraph/identity"
	"supergraph/middleware"
	"supergraph/utils"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// supergraphSchema is the graphql.ExecutableSchema of one composed
// supergraph. gqlgen parses and validates the operation against it; Exec
// plans the operation and runs it against the subgraphs.
type supergraphSchema struct {
	sg     *Supergraph
	client *SubgraphClient
	// local answers __schema and __type from the supergraph schema
	local *exec.Schema
}

func (s *supergraphSchema) Schema() *ast.Schema {
	return s.sg.Schema
}

func (s *supergraphSchema) Complexity(ctx context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

func (s *supergraphSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		return s.execute(ctx, opCtx)
	}
}

func (s *supergraphSchema) execute(ctx context.Context, opCtx *graphql.OperationContext) *graphql.Response {
	op := opCtx.Operation
	log := utils.Logger.With(
		zap.String("operation_name", op.Name),
		zap.String("operation_type", string(op.Operation)),
		zap.String("request_id", middleware.RequestIDFromContext(ctx)),
	)

	plan, err := Plan(s.sg, opCtx)
	if err != nil {
		log.Warn("Query plan failed", zap.Error(err))
		return &graphql.Response{Errors: gqlerror.List{
			newError(ctx, CodeQueryPlanFailed, messageQueryPlanFailed, nil, utils.TemplateData{"Reason": planFailureReason(err)}, nil),
		}}
	}

	log.Info("GraphQL operation", zap.Int("root_fetches", len(plan.Roots)))
	log.Debug("Query plan", zap.String("plan", plan.String()))

	return newExecution(s.client, s.sg, plan, opCtx, identity.FromContext(ctx)).run(ctx, s.local)
}

// planFailureReason is the client-facing reason of a planning failure
func planFailureReason(err error) string {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}

// newServer serves sg with gqlgen's handler. introspection enables
// __schema and __type.
func newServer(sg *Supergraph, client *SubgraphClient, introspection bool) *handler.Server {
	srv := handler.New(&supergraphSchema{
		sg:     sg,
		client: client,
		local:  exec.NewIntrospectionSchema(sg.Schema),
	})
	if introspection {
		srv.Use(extension.Introspection{})
	}

	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})

	srv.SetRecoverFunc(exec.Recover)
	srv.AroundResponses(exec.SortErrors)

	return srv
}
