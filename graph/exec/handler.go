package exec

import (
	"context"
	"os"
	"runtime/debug"
	"sort"

	"supergraph/utils"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// NewServer serves s with gqlgen's handler over POST and GET. Introspection
// is enabled outside production.
func NewServer(s *Schema) *handler.Server {
	srv := handler.New(s)
	if os.Getenv("ENV") != "production" {
		srv.Use(extension.Introspection{})
	}

	// Добавляем HTTP транспорты
	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})

	srv.SetRecoverFunc(Recover)
	srv.AroundResponses(SortErrors)
	for _, mw := range s.middlewares {
		srv.AroundOperations(mw)
	}

	return srv
}

// Recover logs a resolver panic; the client only sees an internal error
func Recover(ctx context.Context, err any) error {
	fields := []zap.Field{zap.Any("panic", err), zap.ByteString("stack", debug.Stack())}
	if fc := graphql.GetFieldContext(ctx); fc != nil {
		fields = append(fields, zap.String("path", fc.Path().String()))
	}
	utils.Logger.Error("Resolver panic", fields...)

	return &gqlerror.Error{
		Message:    "internal system error",
		Extensions: map[string]any{"code": CodeInternal},
	}
}

// SortErrors orders response errors by path. Sibling fields resolve
// concurrently, so the order they were added in is not stable.
func SortErrors(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
	resp := next(ctx)
	if resp != nil {
		sort.SliceStable(resp.Errors, func(i, j int) bool {
			return resp.Errors[i].Path.String() < resp.Errors[j].Path.String()
		})
	}
	return resp
}

// LoggingMiddleware логирует операции GraphQL
func LoggingMiddleware(service string) graphql.OperationMiddleware {
	return func(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
		opCtx := graphql.GetOperationContext(ctx)
		utils.Logger.Info("GraphQL operation",
			zap.String("service", service),
			zap.String("operation_name", opCtx.OperationName),
			zap.String("operation_type", string(opCtx.Operation.Operation)),
		)
		return next(ctx)
	}
}
