package gateway

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"supergraph/graph/federation"

	"github.com/hashicorp/go-multierror"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// SubgraphSchema is the SDL a subgraph advertised through _service
type SubgraphSchema struct {
	Name string
	URL  string
	SDL  string
}

// Supergraph is one composed schema version
type Supergraph struct {
	// Schema is the client-facing schema, federation internals stripped
	Schema *ast.Schema
	SDL    string
	// Version changes whenever any subgraph SDL changes
	Version   string
	Types     map[string]*TypeInfo
	Subgraphs map[string]SubgraphSchema
}

// Subgraph returns the descriptor of a composed subgraph
func (s *Supergraph) Subgraph(name string) (SubgraphDescriptor, bool) {
	sg, ok := s.Subgraphs[name]
	return SubgraphDescriptor{Name: sg.Name, URL: sg.URL}, ok
}

// Conflict is one composition failure
type Conflict struct {
	Type      string
	Field     string
	Subgraphs []string
	Reason    string
}

func (c *Conflict) Error() string {
	target := c.Type
	if c.Field != "" {
		target += "." + c.Field
	}
	msg := c.Reason
	if target != "" {
		msg = target + ": " + msg
	}
	if len(c.Subgraphs) > 0 {
		msg += " [" + strings.Join(c.Subgraphs, ", ") + "]"
	}
	return msg
}

// CompositionError aggregates every conflict found by Compose
type CompositionError struct {
	errs *multierror.Error
}

func (e *CompositionError) Error() string {
	return "supergraph composition failed: " + e.errs.Error()
}

// Conflicts returns the individual conflicts
func (e *CompositionError) Conflicts() []*Conflict {
	var out []*Conflict
	for _, err := range e.errs.WrappedErrors() {
		var c *Conflict
		if errors.As(err, &c) {
			out = append(out, c)
		}
	}
	return out
}

// IsCompositionError reports whether err came from Compose
func IsCompositionError(err error) bool {
	var ce *CompositionError
	return errors.As(err, &ce)
}

var builtinScalars = map[string]bool{"Int": true, "Float": true, "String": true, "Boolean": true, "ID": true}

func isInternalType(name string) bool {
	return name == "_Service" || name == "_Any" || name == "_Entity" || strings.HasPrefix(name, "__")
}

func isInternalField(typeName, field string) bool {
	return strings.HasPrefix(field, "__") || (typeName == "Query" && (field == "_service" || field == "_entities"))
}

func isRootType(name string) bool {
	return name == "Query" || name == "Mutation" || name == "Subscription"
}

type composer struct {
	types map[string]*TypeInfo
	errs  *multierror.Error
	seen  map[string]bool
}

func (c *composer) conflict(conf *Conflict) {
	key := conf.Error()
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.errs = multierror.Append(c.errs, conf)
}

// Compose merges subgraph schemas into a supergraph. Every problem is
// reported; a *CompositionError is returned when there is at least one.
func Compose(subgraphs []SubgraphSchema) (*Supergraph, error) {
	sorted := make([]SubgraphSchema, len(subgraphs))
	copy(sorted, subgraphs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	c := &composer{types: map[string]*TypeInfo{}, seen: map[string]bool{}}
	byName := make(map[string]SubgraphSchema, len(sorted))

	for _, sg := range sorted {
		if _, dup := byName[sg.Name]; dup {
			c.conflict(&Conflict{Subgraphs: []string{sg.Name}, Reason: "subgraph registered twice"})
			continue
		}
		byName[sg.Name] = sg

		doc, parseErr := parser.ParseSchema(&ast.Source{Name: sg.Name, Input: sg.SDL})
		if parseErr != nil {
			c.conflict(&Conflict{Subgraphs: []string{sg.Name}, Reason: fmt.Sprintf("invalid SDL: %v", parseErr)})
			continue
		}

		defs := make(ast.DefinitionList, 0, len(doc.Definitions)+len(doc.Extensions))
		defs = append(defs, doc.Definitions...)
		defs = append(defs, doc.Extensions...)
		for _, def := range defs {
			if !isInternalType(def.Name) {
				c.add(sg.Name, def)
			}
		}
	}

	if len(sorted) == 0 {
		c.conflict(&Conflict{Reason: "no subgraphs registered"})
	}
	if c.types["Query"] == nil {
		c.conflict(&Conflict{Type: "Query", Reason: "no subgraph declares a Query type"})
	}

	c.checkOwnership()
	c.checkTypeReferences()
	c.checkEntityRoutes()

	if c.errs != nil {
		return nil, &CompositionError{errs: c.errs}
	}

	sdl := c.render()
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "supergraph.graphql", Input: sdl})
	if err != nil {
		return nil, &CompositionError{errs: multierror.Append(nil, &Conflict{
			Reason: fmt.Sprintf("composed schema is invalid: %v", err),
		})}
	}

	return &Supergraph{
		Schema:    schema,
		SDL:       sdl,
		Version:   schemaVersion(sorted),
		Types:     c.types,
		Subgraphs: byName,
	}, nil
}

func (c *composer) add(subgraph string, def *ast.Definition) {
	t := c.types[def.Name]
	if t == nil {
		t = &TypeInfo{
			Name:       def.Name,
			Kind:       def.Kind,
			Keys:       map[string][]federation.Key{},
			Declared:   map[string]map[string]bool{},
			Fields:     map[string]*FieldInfo{},
			definition: def,
		}
		c.types[def.Name] = t
	} else if t.Kind != def.Kind {
		c.conflict(&Conflict{
			Type:      def.Name,
			Subgraphs: append(append([]string{}, t.Subgraphs...), subgraph),
			Reason:    fmt.Sprintf("declared as %s and as %s", t.Kind, def.Kind),
		})
		return
	}
	t.Subgraphs = addSorted(t.Subgraphs, subgraph)

	switch def.Kind {
	case ast.Object, ast.Interface:
		c.addFields(subgraph, t, def)
	case ast.Union:
		for _, member := range def.Types {
			t.members = addSorted(t.members, member)
		}
	case ast.Enum:
		for _, v := range def.EnumValues {
			if t.enumValues.ForName(v.Name) == nil {
				t.enumValues = append(t.enumValues, v)
			}
		}
	case ast.InputObject:
		for _, f := range def.Fields {
			if t.inputFields.ForName(f.Name) == nil {
				t.inputFields = append(t.inputFields, f)
			}
		}
	}
}

func (c *composer) addFields(subgraph string, t *TypeInfo, def *ast.Definition) {
	keys, err := federation.Keys(def)
	if err != nil {
		c.conflict(&Conflict{Type: def.Name, Subgraphs: []string{subgraph}, Reason: err.Error()})
	}
	if len(keys) > 0 {
		t.Keys[subgraph] = append(t.Keys[subgraph], keys...)
	}
	for _, iface := range def.Interfaces {
		t.interfaces = addSorted(t.interfaces, iface)
	}

	if t.Declared[subgraph] == nil {
		t.Declared[subgraph] = map[string]bool{}
	}

	for _, f := range def.Fields {
		if isInternalField(def.Name, f.Name) {
			continue
		}
		t.Declared[subgraph][f.Name] = true

		fi := t.Fields[f.Name]
		if fi == nil {
			fi = &FieldInfo{Name: f.Name, Type: f.Type, ShareableIn: map[string]bool{}, Definition: f}
			t.Fields[f.Name] = fi
			t.fieldOrder = append(t.fieldOrder, f.Name)
		} else if fi.Type.String() != f.Type.String() {
			c.conflict(&Conflict{
				Type:      def.Name,
				Field:     f.Name,
				Subgraphs: []string{subgraph},
				Reason:    fmt.Sprintf("declared as %s and as %s", fi.Type, f.Type),
			})
		}

		if federation.IsExternal(def, f) {
			continue
		}
		if len(fi.Owners) == 0 {
			fi.Definition = f
		}
		fi.Owners = addSorted(fi.Owners, subgraph)
		if federation.IsShareable(def, f) {
			fi.ShareableIn[subgraph] = true
		}
	}

	for _, k := range keys {
		for _, kf := range k.Fields {
			if !t.Declared[subgraph][kf] {
				c.conflict(&Conflict{
					Type:      def.Name,
					Field:     kf,
					Subgraphs: []string{subgraph},
					Reason:    "key field is not declared",
				})
			}
		}
	}
}

// checkOwnership: a field resolved by two subgraphs must be a key field in
// each of them or @shareable in each of them
func (c *composer) checkOwnership() {
	for _, name := range c.sortedTypeNames() {
		t := c.types[name]
		for _, fname := range t.fieldOrder {
			fi := t.Fields[fname]

			if len(fi.Owners) == 0 {
				provided := false
				for _, sg := range t.Subgraphs {
					provided = provided || (t.Declared[sg][fname] && t.IsKeyField(sg, fname))
				}
				if !provided {
					c.conflict(&Conflict{Type: name, Field: fname, Reason: "field is @external in every subgraph"})
				}
				continue
			}
			if len(fi.Owners) < 2 {
				continue
			}

			allKey, allShareable := true, true
			for _, o := range fi.Owners {
				allKey = allKey && t.IsKeyField(o, fname)
				allShareable = allShareable && fi.ShareableIn[o]
			}
			if !allKey && !allShareable {
				c.conflict(&Conflict{
					Type:      name,
					Field:     fname,
					Subgraphs: fi.Owners,
					Reason:    "field is owned by more than one subgraph and is neither a key nor @shareable",
				})
			}
		}
	}
}

func (c *composer) checkTypeReferences() {
	check := func(typeName, field string, typ *ast.Type) {
		named := namedType(typ)
		if !builtinScalars[named] && c.types[named] == nil {
			c.conflict(&Conflict{
				Type:   typeName,
				Field:  field,
				Reason: fmt.Sprintf("type %s is not declared by any subgraph", named),
			})
		}
	}

	for _, name := range c.sortedTypeNames() {
		t := c.types[name]
		for _, fname := range t.fieldOrder {
			fi := t.Fields[fname]
			check(name, fname, fi.Type)
			for _, arg := range fi.Definition.Arguments {
				check(name, fname, arg.Type)
			}
		}
		for _, f := range t.inputFields {
			check(name, f.Name, f.Type)
		}
		for _, member := range t.members {
			if c.types[member] == nil {
				c.conflict(&Conflict{Type: name, Reason: fmt.Sprintf("union member %s is not declared", member)})
			}
		}
	}
}

// checkEntityRoutes: every subgraph that can return an object must be able
// to reach each of its fields, directly or with a single entity hop
func (c *composer) checkEntityRoutes() {
	producers := map[string][]string{}
	for _, name := range c.sortedTypeNames() {
		t := c.types[name]
		for _, fname := range t.fieldOrder {
			fi := t.Fields[fname]
			target := namedType(fi.Type)
			for _, o := range fi.Owners {
				producers[target] = addSorted(producers[target], o)
			}
		}
		for sg, keys := range t.Keys {
			for _, k := range keys {
				if k.Resolvable {
					producers[name] = addSorted(producers[name], sg)
				}
			}
		}
	}

	for _, name := range c.sortedTypeNames() {
		t := c.types[name]
		if t.Kind != ast.Object || isRootType(name) {
			continue
		}
		for _, from := range producers[name] {
			for _, fname := range t.fieldOrder {
				if t.CanResolve(from, fname) {
					continue
				}
				if _, _, ok := t.Owner(fname, from); !ok {
					c.conflict(&Conflict{
						Type:      name,
						Field:     fname,
						Subgraphs: []string{from},
						Reason:    "unreachable: no owning subgraph has a resolvable @key whose fields this subgraph provides",
					})
				}
			}
		}
	}
}

func (c *composer) sortedTypeNames() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// render prints the client-facing schema: merged types without federation
// directives or internal fields
func (c *composer) render() string {
	doc := &ast.SchemaDocument{}

	for _, name := range c.sortedTypeNames() {
		t := c.types[name]
		def := &ast.Definition{
			Kind:        t.Kind,
			Name:        t.Name,
			Description: t.definition.Description,
		}

		switch t.Kind {
		case ast.Object, ast.Interface:
			def.Interfaces = t.interfaces
			for _, fname := range t.fieldOrder {
				fd := t.Fields[fname].Definition
				def.Fields = append(def.Fields, publicField(fd))
			}
		case ast.Union:
			def.Types = t.members
		case ast.Enum:
			for _, v := range t.enumValues {
				def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
					Description: v.Description,
					Name:        v.Name,
					Directives:  publicDirectives(v.Directives),
				})
			}
		case ast.InputObject:
			for _, f := range t.inputFields {
				def.Fields = append(def.Fields, publicField(f))
			}
		}

		doc.Definitions = append(doc.Definitions, def)
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

func publicField(fd *ast.FieldDefinition) *ast.FieldDefinition {
	out := &ast.FieldDefinition{
		Description:  fd.Description,
		Name:         fd.Name,
		Type:         fd.Type,
		DefaultValue: fd.DefaultValue,
		Directives:   publicDirectives(fd.Directives),
	}
	for _, arg := range fd.Arguments {
		out.Arguments = append(out.Arguments, &ast.ArgumentDefinition{
			Description:  arg.Description,
			Name:         arg.Name,
			DefaultValue: arg.DefaultValue,
			Type:         arg.Type,
			Directives:   publicDirectives(arg.Directives),
		})
	}
	return out
}

// publicDirectives keeps the directives a client schema may carry
func publicDirectives(list ast.DirectiveList) ast.DirectiveList {
	var out ast.DirectiveList
	for _, d := range list {
		if d.Name == "deprecated" {
			out = append(out, d)
		}
	}
	return out
}

func namedType(t *ast.Type) string {
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

func schemaVersion(subgraphs []SubgraphSchema) string {
	h := sha256.New()
	for _, sg := range subgraphs {
		fmt.Fprintf(h, "%s\x00%s\x00", sg.Name, sg.SDL)
	}
	return hex.EncodeToString(h.Sum(nil))
}
