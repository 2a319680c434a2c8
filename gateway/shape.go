package gateway

import (
	"supergraph/graph/exec"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
)

// shape projects the merged subgraph results onto the client selection:
// selection order and aliases are kept, __typename is filled in, planner
// aliases are dropped and missing values become null.
//
// A null in a non-null position nulls the enclosing object, up to the
// nearest nullable field. Root fields stop the propagation: a failed root
// field is null on its own and never takes its siblings' data with it.
// The boolean result is false when obj itself has to become null.
func shape(opCtx *graphql.OperationContext, sg *Supergraph, obj map[string]any, typeName string, sels ast.SelectionSet, root bool) (*exec.OrderedMap, bool) {
	satisfies := []string{typeName}
	if t := sg.Types[typeName]; t != nil {
		satisfies = append(satisfies, t.interfaces...)
	}

	fields := graphql.CollectFields(opCtx, sels, satisfies)
	out := exec.NewOrderedMap(len(fields))

	for _, f := range fields {
		if f.Name == "__typename" {
			out.Set(f.Alias, typeName)
			continue
		}
		if f.Definition == nil {
			out.Set(f.Alias, nil)
			continue
		}

		v := shapeValue(opCtx, sg, obj[f.Alias], f.Definition.Type, f.Selections)
		if v == nil && f.Definition.Type.NonNull && !root {
			return nil, false
		}
		out.Set(f.Alias, v)
	}
	return out, true
}

// shapeValue returns nil when v is null or has to become null
func shapeValue(opCtx *graphql.OperationContext, sg *Supergraph, v any, typ *ast.Type, sels ast.SelectionSet) any {
	if v == nil {
		return nil
	}

	if typ.Elem != nil {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = shapeValue(opCtx, sg, item, typ.Elem, sels)
			if out[i] == nil && typ.Elem.NonNull {
				return nil
			}
		}
		return out
	}

	if len(sels) == 0 {
		return v
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	shaped, ok := shape(opCtx, sg, obj, typ.NamedType, sels, false)
	if !ok {
		return nil
	}
	return shaped
}
