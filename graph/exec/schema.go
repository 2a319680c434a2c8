// Package exec is a small GraphQL executor over gqlparser ASTs. It serves the
// subgraphs: resolvers are registered per type and field, everything else is
// resolved from struct json tags or map keys.
package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes set in extensions.code. Validation failures are coded by
// gqlgen's executor.
const (
	CodeValidationFailed = "GRAPHQL_VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// FieldResolver resolves one field of obj
type FieldResolver func(ctx context.Context, obj any, args map[string]any) (any, error)

// Resolvers maps type name -> field name -> resolver
type Resolvers map[string]map[string]FieldResolver

// DirectiveHandler wraps the resolver of every field definition carrying the
// directive
type DirectiveHandler func(ctx context.Context, obj any, next graphql.Resolver) (any, error)

// Config wires resolvers into a schema
type Config struct {
	Resolvers  Resolvers
	Directives map[string]DirectiveHandler
	// TypeOf names the concrete object type of a value returned for an
	// interface or union field. Defaults to TypeName.
	TypeOf func(obj any) string
}

// Schema is a graphql.ExecutableSchema resolved at runtime from the
// registered resolvers
type Schema struct {
	schema      *ast.Schema
	resolvers   Resolvers
	directives  map[string]DirectiveHandler
	typeOf      func(obj any) string
	satisfies   map[string][]string
	middlewares []graphql.OperationMiddleware
}

// NewSchema loads and validates sdl and checks every resolver names a field
// of the schema
func NewSchema(sdl string, cfg Config) (*Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	for typeName, fields := range cfg.Resolvers {
		def := schema.Types[typeName]
		if def == nil {
			return nil, fmt.Errorf("resolver for unknown type %s", typeName)
		}
		for fieldName := range fields {
			if def.Fields.ForName(fieldName) == nil {
				return nil, fmt.Errorf("resolver for unknown field %s.%s", typeName, fieldName)
			}
		}
	}

	return newSchema(schema, cfg), nil
}

// NewIntrospectionSchema serves only __schema, __type and __typename over an
// already validated schema. The gateway uses it for the supergraph.
func NewIntrospectionSchema(schema *ast.Schema) *Schema {
	return newSchema(schema, Config{})
}

func newSchema(schema *ast.Schema, cfg Config) *Schema {
	typeOf := cfg.TypeOf
	if typeOf == nil {
		typeOf = TypeName
	}

	// type conditions an object of each type matches in fragments
	satisfies := make(map[string][]string, len(schema.Types))
	for name, def := range schema.Types {
		if def.Kind != ast.Object {
			continue
		}
		names := []string{name}
		for _, impl := range schema.GetImplements(def) {
			names = append(names, impl.Name)
		}
		satisfies[name] = names
	}

	return &Schema{
		schema:     schema,
		resolvers:  cfg.Resolvers,
		directives: cfg.Directives,
		typeOf:     typeOf,
		satisfies:  satisfies,
	}
}

// Schema returns the loaded schema
func (s *Schema) Schema() *ast.Schema {
	return s.schema
}

// AroundOperations adds an operation middleware. Middlewares run in the order
// they were added once the schema is served by NewServer.
func (s *Schema) AroundOperations(mw graphql.OperationMiddleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Complexity leaves every field at gqlgen's default cost
func (s *Schema) Complexity(ctx context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

// Exec runs the operation of ctx
func (s *Schema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	if opCtx.Operation.Operation == ast.Subscription {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "subscriptions are not supported"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		return newExecutor(s, opCtx).run(ctx)
	}
}

// toGQLError keeps message and extensions of a *gqlerror.Error and wraps
// anything else. path is used when the error carries none.
func toGQLError(err error, path ast.Path) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		out := *gqlErr
		if len(out.Path) == 0 {
			out.Path = path
		}
		return &out
	}
	return &gqlerror.Error{Err: err, Message: err.Error(), Path: path}
}
