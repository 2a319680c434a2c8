// Package federation turns a subgraph SDL into an executable schema that
// speaks the federation protocol: _service { sdl } and
// _entities(representations:).
package federation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"supergraph/graph/exec"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// Representation is an entity stub sent by the gateway:
// {__typename, <key fields>}
type Representation struct {
	Typename string
	Fields   map[string]any
}

// Key returns a key field value as a string
func (r Representation) Key(field string) string {
	switch v := r.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// EntityResolver resolves a batch of representations of one type. The
// result must be aligned with reps; nil marks an unknown key.
type EntityResolver func(ctx context.Context, reps []Representation) ([]any, error)

// Config wires a federated subgraph
type Config struct {
	Resolvers exec.Resolvers
	// Entities maps every type with a resolvable @key to its resolver
	Entities   map[string]EntityResolver
	Directives map[string]exec.DirectiveHandler
	TypeOf     func(obj any) string
}

// Subgraph is the executable schema of a subgraph together with the SDL it
// advertises through _service
type Subgraph struct {
	*exec.Schema
	sdl      string
	entities map[string]EntityResolver
}

// SDL returns the subgraph SDL as written, federation directives included
func (s *Subgraph) SDL() string {
	return s.sdl
}

// NewSubgraph builds the executable schema for sdl
func NewSubgraph(sdl string, cfg Config) (*Subgraph, error) {
	doc, parseErr := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if parseErr != nil {
		return nil, fmt.Errorf("parse subgraph schema: %w", parseErr)
	}

	entities, err := EntityTypes(doc)
	if err != nil {
		return nil, err
	}
	for _, name := range entities {
		if cfg.Entities[name] == nil {
			return nil, fmt.Errorf("entity %s has no entity resolver", name)
		}
	}

	full := buildExecutableSDL(doc, entities)

	sg := &Subgraph{sdl: sdl, entities: cfg.Entities}

	resolvers := exec.Resolvers{}
	for typeName, fields := range cfg.Resolvers {
		resolvers[typeName] = make(map[string]exec.FieldResolver, len(fields))
		for name, r := range fields {
			resolvers[typeName][name] = r
		}
	}
	if resolvers["Query"] == nil {
		resolvers["Query"] = map[string]exec.FieldResolver{}
	}
	resolvers["Query"]["_service"] = sg.resolveService
	if len(entities) > 0 {
		resolvers["Query"]["_entities"] = sg.resolveEntities
	}

	schema, err := exec.NewSchema(full, exec.Config{
		Resolvers:  resolvers,
		Directives: cfg.Directives,
		TypeOf:     cfg.TypeOf,
	})
	if err != nil {
		return nil, err
	}
	sg.Schema = schema
	return sg, nil
}

// EntityTypes returns the sorted names of types with a resolvable @key,
// across definitions and extensions
func EntityTypes(doc *ast.SchemaDocument) ([]string, error) {
	seen := map[string]bool{}
	for _, list := range []ast.DefinitionList{doc.Definitions, doc.Extensions} {
		for _, def := range list {
			keys, err := Keys(def)
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				if k.Resolvable && def.Kind == ast.Object {
					seen[def.Name] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// buildExecutableSDL turns extensions of types the subgraph never defines
// into definitions and appends the federation types and root fields
func buildExecutableSDL(doc *ast.SchemaDocument, entities []string) string {
	var extensions ast.DefinitionList
	for _, ext := range doc.Extensions {
		if doc.Definitions.ForName(ext.Name) == nil {
			doc.Definitions = append(doc.Definitions, ext)
			continue
		}
		extensions = append(extensions, ext)
	}
	doc.Extensions = extensions

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)

	if doc.Directives.ForName(DirectiveKey) == nil {
		buf.WriteString("\n")
		buf.WriteString(DirectiveDefinitions)
	}

	buf.WriteString("\nscalar _Any\n\ntype _Service {\n  sdl: String!\n}\n")

	queryKeyword := "extend type Query"
	if doc.Definitions.ForName("Query") == nil {
		queryKeyword = "type Query"
	}

	var root strings.Builder
	root.WriteString("\n" + queryKeyword + " {\n")
	if len(entities) > 0 {
		fmt.Fprintf(&buf, "\nunion _Entity = %s\n", strings.Join(entities, " | "))
		root.WriteString("  _entities(representations: [_Any!]!): [_Entity]!\n")
	}
	root.WriteString("  _service: _Service!\n}\n")
	buf.WriteString(root.String())

	return buf.String()
}

func (s *Subgraph) resolveService(ctx context.Context, obj any, args map[string]any) (any, error) {
	return map[string]any{"sdl": s.sdl}, nil
}

func (s *Subgraph) resolveEntities(ctx context.Context, obj any, args map[string]any) (any, error) {
	raw, _ := args["representations"].([]any)
	results := make([]any, len(raw))

	// indexes per typename, typenames in order of first appearance
	groups := map[string][]int{}
	var order []string
	reps := make([]Representation, len(raw))

	for i, item := range raw {
		fields, _ := item.(map[string]any)
		typename, _ := fields["__typename"].(string)
		if typename == "" {
			addEntityError(ctx, i, fmt.Errorf("representation %d has no __typename", i))
			continue
		}
		if s.entities[typename] == nil {
			addEntityError(ctx, i, fmt.Errorf("%s is not an entity of this subgraph", typename))
			continue
		}

		reps[i] = Representation{Typename: typename, Fields: fields}
		if _, ok := groups[typename]; !ok {
			order = append(order, typename)
		}
		groups[typename] = append(groups[typename], i)
	}

	for _, typename := range order {
		idxs := groups[typename]
		batch := make([]Representation, len(idxs))
		for j, i := range idxs {
			batch[j] = reps[i]
		}

		values, err := s.entities[typename](ctx, batch)
		if err == nil && len(values) != len(batch) {
			err = fmt.Errorf("%s resolver returned %d entities for %d representations", typename, len(values), len(batch))
		}
		if err != nil {
			for _, i := range idxs {
				addEntityError(ctx, i, err)
			}
			continue
		}

		for j, i := range idxs {
			results[i] = values[j]
		}
	}

	return results, nil
}

// addEntityError reports err on _entities.<i>; the entity stays null
func addEntityError(ctx context.Context, i int, err error) {
	path := append(graphql.GetFieldContext(ctx).Path(), ast.PathIndex(i))

	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		out := *gqlErr
		out.Path = path
		graphql.AddError(ctx, &out)
		return
	}
	graphql.AddError(ctx, gqlerror.WrapPath(path, err))
}
