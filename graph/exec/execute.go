package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// executor runs one operation. Errors go to the gqlgen response context of
// the operation through graphql.AddError.
type executor struct {
	schema *Schema
	opCtx  *graphql.OperationContext
}

func newExecutor(s *Schema, opCtx *graphql.OperationContext) *executor {
	return &executor{schema: s, opCtx: opCtx}
}

func (e *executor) run(ctx context.Context) *graphql.Response {
	op := e.opCtx.Operation

	root := e.schema.schema.Query
	if op.Operation == ast.Mutation {
		root = e.schema.schema.Mutation
	}

	data, ok := e.executeSelectionSet(ctx, root, nil, op.SelectionSet, nil, op.Operation == ast.Mutation)

	var raw json.RawMessage = []byte("null")
	if ok {
		b, err := json.Marshal(data)
		if err != nil {
			graphql.AddError(ctx, fmt.Errorf("encode response: %w", err))
		} else {
			raw = b
		}
	}

	return &graphql.Response{Data: raw}
}

// ResolveRootFields resolves fields of the query root for the operation of
// ctx, keyed by response key. Field errors are added to the response
// context of ctx.
func (s *Schema) ResolveRootFields(ctx context.Context, fields []graphql.CollectedField) *OrderedMap {
	e := newExecutor(s, graphql.GetOperationContext(ctx))
	out := NewOrderedMap(len(fields))
	for _, f := range fields {
		v, _ := e.executeField(ctx, s.schema.Query, nil, f, ast.Path{ast.PathName(f.Alias)})
		out.Set(f.Alias, v)
	}
	return out
}

func (e *executor) addError(ctx context.Context, err *gqlerror.Error) {
	graphql.AddError(ctx, err)
}

// executeSelectionSet returns false when a non-null field below it was null,
// in which case the object itself must become null
func (e *executor) executeSelectionSet(ctx context.Context, def *ast.Definition, obj any, sels ast.SelectionSet, path ast.Path, serial bool) (*OrderedMap, bool) {
	fields := graphql.CollectFields(e.opCtx, sels, e.schema.satisfies[def.Name])
	out := NewOrderedMap(len(fields))

	if serial || len(fields) < 2 {
		valid := true
		for _, f := range fields {
			v, ok := e.executeField(ctx, def, obj, f, appendPath(path, ast.PathName(f.Alias)))
			out.Set(f.Alias, v)
			valid = valid && ok
		}
		return out, valid
	}

	values := make([]any, len(fields))
	oks := make([]bool, len(fields))
	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func(i int, f graphql.CollectedField) {
			defer wg.Done()
			values[i], oks[i] = e.executeField(ctx, def, obj, f, appendPath(path, ast.PathName(f.Alias)))
		}(i, f)
	}
	wg.Wait()

	valid := true
	for i, f := range fields {
		out.Set(f.Alias, values[i])
		valid = valid && oks[i]
	}
	return out, valid
}

func (e *executor) executeField(ctx context.Context, parent *ast.Definition, obj any, f graphql.CollectedField, path ast.Path) (value any, ok bool) {
	if f.Name == "__typename" {
		return parent.Name, true
	}
	if f.Definition == nil {
		e.addError(ctx, &gqlerror.Error{Message: fmt.Sprintf("unknown field %s.%s", parent.Name, f.Name), Path: path})
		return nil, false
	}

	args := f.ArgumentMap(e.opCtx.Variables)
	fctx := graphql.WithFieldContext(ctx, &graphql.FieldContext{
		Object: parent.Name,
		Field:  f,
		Args:   args,
	})

	defer func() {
		if r := recover(); r != nil {
			e.addError(fctx, toGQLError(e.opCtx.Recover(fctx, r), path))
			value, ok = nil, !f.Definition.Type.NonNull
		}
	}()

	next := e.resolver(parent, obj, f, args)
	for i := len(f.Definition.Directives) - 1; i >= 0; i-- {
		if handler := e.schema.directives[f.Definition.Directives[i].Name]; handler != nil {
			inner := next
			next = func(ctx context.Context) (any, error) { return handler(ctx, obj, inner) }
		}
	}

	var (
		resolved any
		err      error
	)
	if e.opCtx.ResolverMiddleware != nil {
		resolved, err = e.opCtx.ResolverMiddleware(fctx, next)
	} else {
		resolved, err = next(fctx)
	}
	if err != nil {
		e.addError(fctx, toGQLError(err, path))
		return nil, !f.Definition.Type.NonNull
	}

	return e.completeValue(fctx, f.Definition.Type, f.Selections, resolved, path)
}

// resolver picks the resolver of f: introspection, a registered resolver or
// the default field reader
func (e *executor) resolver(parent *ast.Definition, obj any, f graphql.CollectedField, args map[string]any) graphql.Resolver {
	switch {
	case f.Name == "__schema":
		return func(ctx context.Context) (any, error) {
			if e.opCtx.DisableIntrospection {
				return nil, fmt.Errorf("introspection disabled")
			}
			return introspection.WrapSchema(e.schema.schema), nil
		}
	case f.Name == "__type":
		return func(ctx context.Context) (any, error) {
			if e.opCtx.DisableIntrospection {
				return nil, fmt.Errorf("introspection disabled")
			}
			return introspection.WrapTypeFromDef(e.schema.schema, e.schema.schema.Types[StringArg(args, "name")]), nil
		}
	case strings.HasPrefix(parent.Name, "__"):
		return func(ctx context.Context) (any, error) { return introspectionField(obj, f.Name, args) }
	}

	if r := e.schema.resolvers[parent.Name][f.Name]; r != nil {
		return func(ctx context.Context) (any, error) { return r(ctx, obj, args) }
	}
	return func(ctx context.Context) (any, error) { return DefaultResolver(obj, f.Name) }
}

func (e *executor) completeValue(ctx context.Context, typ *ast.Type, sels ast.SelectionSet, val any, path ast.Path) (any, bool) {
	if isNil(val) {
		if typ.NonNull {
			e.addError(ctx, &gqlerror.Error{Message: "must not be null", Path: path})
			return nil, false
		}
		return nil, true
	}

	out, ok := e.completeNonNull(ctx, typ, sels, val, path)
	if !ok {
		return nil, !typ.NonNull
	}
	return out, true
}

func (e *executor) completeNonNull(ctx context.Context, typ *ast.Type, sels ast.SelectionSet, val any, path ast.Path) (any, bool) {
	if typ.Elem != nil {
		return e.completeList(ctx, typ.Elem, sels, val, path)
	}

	def := e.schema.schema.Types[typ.NamedType]
	if def == nil {
		e.addError(ctx, &gqlerror.Error{Message: "unknown type " + typ.NamedType, Path: path})
		return nil, false
	}

	switch def.Kind {
	case ast.Scalar:
		v, err := serializeScalar(def.Name, val)
		if err != nil {
			e.addError(ctx, toGQLError(err, path))
			return nil, false
		}
		return v, true
	case ast.Enum:
		return fmt.Sprint(deref(val)), true
	case ast.Object:
		return e.executeSelectionSet(ctx, def, val, sels, path, false)
	case ast.Interface, ast.Union:
		concrete := e.schema.schema.Types[e.schema.typeOf(val)]
		if concrete == nil || !e.isPossibleType(def, concrete) {
			e.addError(ctx, &gqlerror.Error{
				Message: fmt.Sprintf("cannot resolve the concrete type of %s for %T", def.Name, val),
				Path:    path,
			})
			return nil, false
		}
		return e.executeSelectionSet(ctx, concrete, val, sels, path, false)
	default:
		e.addError(ctx, &gqlerror.Error{Message: "cannot output type " + def.Name, Path: path})
		return nil, false
	}
}

// completeList completes items concurrently, which lets batch loaders
// coalesce lookups issued by sibling items
func (e *executor) completeList(ctx context.Context, elem *ast.Type, sels ast.SelectionSet, val any, path ast.Path) (any, bool) {
	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		e.addError(ctx, &gqlerror.Error{Message: fmt.Sprintf("expected a list, got %T", val), Path: path})
		return nil, false
	}

	n := rv.Len()
	items := make([]any, n)
	oks := make([]bool, n)

	completeItem := func(i int) {
		ictx := graphql.WithFieldContext(ctx, &graphql.FieldContext{Index: &i, Result: rv.Index(i).Interface()})
		items[i], oks[i] = e.completeValue(ictx, elem, sels, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
	}

	if n == 1 {
		completeItem(0)
	} else {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				completeItem(i)
			}(i)
		}
		wg.Wait()
	}

	for _, ok := range oks {
		if !ok {
			return nil, false
		}
	}
	return items, true
}

func (e *executor) isPossibleType(abstract, concrete *ast.Definition) bool {
	for _, p := range e.schema.schema.GetPossibleTypes(abstract) {
		if p.Name == concrete.Name {
			return true
		}
	}
	return false
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}
