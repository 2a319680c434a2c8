package federation

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Directive names understood by composition
const (
	DirectiveKey       = "key"
	DirectiveExternal  = "external"
	DirectiveShareable = "shareable"
)

// DirectiveDefinitions declares the federation directives for a subgraph SDL
const DirectiveDefinitions = `directive @key(fields: String!, resolvable: Boolean = true) repeatable on OBJECT | INTERFACE
directive @external on FIELD_DEFINITION | OBJECT
directive @shareable on FIELD_DEFINITION | OBJECT
`

// Key is one @key directive of an entity type
type Key struct {
	Fields     []string
	Resolvable bool
}

// String returns the fields argument as written in SDL
func (k Key) String() string {
	return strings.Join(k.Fields, " ")
}

// Keys reads the @key directives of def. Compound keys are space separated
// field names; nested selections are not supported.
func Keys(def *ast.Definition) ([]Key, error) {
	var keys []Key
	for _, d := range def.Directives.ForNames(DirectiveKey) {
		arg := d.Arguments.ForName("fields")
		if arg == nil || arg.Value == nil || strings.TrimSpace(arg.Value.Raw) == "" {
			return nil, fmt.Errorf("%s: @key without fields", def.Name)
		}
		if strings.ContainsAny(arg.Value.Raw, "{}") {
			return nil, fmt.Errorf("%s: nested key %q is not supported", def.Name, arg.Value.Raw)
		}

		key := Key{Fields: strings.Fields(arg.Value.Raw), Resolvable: true}
		if r := d.Arguments.ForName("resolvable"); r != nil && r.Value != nil && r.Value.Raw == "false" {
			key.Resolvable = false
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// IsExternal reports whether the field is only referenced, not resolved, by the subgraph
func IsExternal(def *ast.Definition, f *ast.FieldDefinition) bool {
	return f.Directives.ForName(DirectiveExternal) != nil || def.Directives.ForName(DirectiveExternal) != nil
}

// IsShareable reports whether the field may be resolved by several subgraphs
func IsShareable(def *ast.Definition, f *ast.FieldDefinition) bool {
	return f.Directives.ForName(DirectiveShareable) != nil || def.Directives.ForName(DirectiveShareable) != nil
}

// IsFederationDirective reports whether name is a directive composition consumes
func IsFederationDirective(name string) bool {
	switch name {
	case DirectiveKey, DirectiveExternal, DirectiveShareable, "requires", "provides", "extends", "link", "tag", "inaccessible", "override", "composeDirective", "interfaceObject":
		return true
	}
	return false
}
