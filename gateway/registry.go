package gateway

import (
	"sort"

	"supergraph/graph/federation"

	"github.com/vektah/gqlparser/v2/ast"
)

// FieldInfo is one field of the supergraph with the subgraphs able to
// resolve it
type FieldInfo struct {
	Name string
	Type *ast.Type
	// Owners resolve the field (declared without @external), sorted
	Owners []string
	// ShareableIn marks the owners that declared the field @shareable
	ShareableIn map[string]bool
	// Definition is the first owner's declaration
	Definition *ast.FieldDefinition
}

// TypeInfo is the registry entry of one type: keys per subgraph and field
// owners
type TypeInfo struct {
	Name string
	Kind ast.DefinitionKind
	// Keys declared by each subgraph
	Keys map[string][]federation.Key
	// Declared lists the fields each subgraph declares, @external included
	Declared map[string]map[string]bool
	Fields   map[string]*FieldInfo
	// Subgraphs declaring the type, sorted
	Subgraphs []string

	// first declaration, used for arguments, enum values and input fields
	definition  *ast.Definition
	fieldOrder  []string
	interfaces  []string
	members     []string
	enumValues  ast.EnumValueList
	inputFields ast.FieldList
}

// IsEntity reports whether any subgraph declares a @key
func (t *TypeInfo) IsEntity() bool {
	return len(t.Keys) > 0
}

// FieldNames returns field names in declaration order
func (t *TypeInfo) FieldNames() []string {
	return t.fieldOrder
}

// IsKeyField reports whether field is part of a key declared by subgraph
func (t *TypeInfo) IsKeyField(subgraph, field string) bool {
	for _, k := range t.Keys[subgraph] {
		for _, f := range k.Fields {
			if f == field {
				return true
			}
		}
	}
	return false
}

// CanResolve reports whether subgraph resolves field itself when it returns
// an object of this type. An @external key field only counts when no
// subgraph owns it.
func (t *TypeInfo) CanResolve(subgraph, field string) bool {
	fi := t.Fields[field]
	if fi == nil {
		return false
	}
	for _, o := range fi.Owners {
		if o == subgraph {
			return true
		}
	}
	return len(fi.Owners) == 0 && t.Provides(subgraph, field)
}

// Provides reports whether subgraph can return a value for field, either as
// an owner or as a key field it declares. Provided values feed entity
// representations.
func (t *TypeInfo) Provides(subgraph, field string) bool {
	fi := t.Fields[field]
	if fi == nil {
		return false
	}
	for _, o := range fi.Owners {
		if o == subgraph {
			return true
		}
	}
	return t.Declared[subgraph][field] && t.IsKeyField(subgraph, field)
}

// ResolvableKey returns the first resolvable key of subgraph whose fields
// from can provide
func (t *TypeInfo) ResolvableKey(subgraph, from string) (federation.Key, bool) {
	for _, k := range t.Keys[subgraph] {
		if !k.Resolvable {
			continue
		}
		ok := true
		for _, f := range k.Fields {
			if !t.Provides(from, f) {
				ok = false
				break
			}
		}
		if ok {
			return k, true
		}
	}
	return federation.Key{}, false
}

// Owner returns the subgraph a fetch running on from should hop to for
// field, and the key to use. ok is false when no route exists.
func (t *TypeInfo) Owner(field, from string) (owner string, key federation.Key, ok bool) {
	fi := t.Fields[field]
	if fi == nil {
		return "", federation.Key{}, false
	}
	for _, o := range fi.Owners {
		if k, found := t.ResolvableKey(o, from); found {
			return o, k, true
		}
	}
	return "", federation.Key{}, false
}

func addSorted(list []string, name string) []string {
	i := sort.SearchStrings(list, name)
	if i < len(list) && list[i] == name {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = name
	return list
}
