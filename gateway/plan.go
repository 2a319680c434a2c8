package gateway

import (
	"bytes"
	"fmt"
	"strings"

	"supergraph/graph/federation"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// aliases the planner adds to a parent fetch so entity representations can
// be built from its result
const (
	typenameAlias  = "_typename"
	keyAliasPrefix = "_key_"
)

const representationsVar = "_representations"

// Fetch is one planned sub-request
type Fetch struct {
	ID       int
	Subgraph string
	// Entity fetches resolve TypeName objects found at Path in the merged
	// response through _entities
	Entity   bool
	TypeName string
	Key      federation.Key
	// Path is the list of response keys from the root to the entity objects
	Path []string

	Operation ast.Operation
	Selection ast.SelectionSet
	// Query is the printed operation sent to the subgraph
	Query string
	// Variables are the client variables the operation uses
	Variables []string
	// Fields are the response keys the fetch fills on each target
	Fields []string

	Dependents []*Fetch

	usedVars map[string]bool
}

// QueryPlan is the ordered set of fetches serving one operation. Query roots
// run concurrently, mutation roots one after another.
type QueryPlan struct {
	Operation ast.Operation
	Roots     []*Fetch
}

// String prints the plan for debug logs
func (p *QueryPlan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "QueryPlan(%s) {\n", p.Operation)
	for _, f := range p.Roots {
		writeFetch(&b, f, 1)
	}
	b.WriteString("}")
	return b.String()
}

func writeFetch(b *strings.Builder, f *Fetch, depth int) {
	indent := strings.Repeat("  ", depth)
	if f.Entity {
		fmt.Fprintf(b, "%sFetch#%d(%s, %s @ %s) %s\n", indent, f.ID, f.Subgraph, f.TypeName, strings.Join(f.Path, "."), oneLine(f.Query))
	} else {
		fmt.Fprintf(b, "%sFetch#%d(%s) %s\n", indent, f.ID, f.Subgraph, oneLine(f.Query))
	}
	for _, dep := range f.Dependents {
		writeFetch(b, dep, depth+1)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Plan splits the operation of opCtx across the subgraphs of sg
func Plan(sg *Supergraph, opCtx *graphql.OperationContext) (*QueryPlan, error) {
	p := &planner{sg: sg, opCtx: opCtx}
	op := opCtx.Operation

	var rootName string
	switch op.Operation {
	case ast.Query:
		rootName = "Query"
	case ast.Mutation:
		rootName = "Mutation"
	default:
		return nil, &PlanError{Reason: fmt.Sprintf("%s operations are not supported", op.Operation)}
	}
	root := sg.Types[rootName]
	if root == nil {
		return nil, &PlanError{Reason: fmt.Sprintf("schema has no %s type", rootName)}
	}

	plan := &QueryPlan{Operation: op.Operation}
	byOwner := map[string]*Fetch{}
	var last *Fetch

	for _, f := range graphql.CollectFields(opCtx, op.SelectionSet, []string{rootName}) {
		// __schema and __type are answered by the gateway itself
		if f.Name == "__typename" || isIntrospectionField(f.Name) {
			continue
		}
		fi := root.Fields[f.Name]
		if fi == nil {
			return nil, &PlanError{Reason: fmt.Sprintf("field %s.%s is served by no subgraph", rootName, f.Name)}
		}
		if len(fi.Owners) == 0 {
			return nil, &PlanError{Reason: fmt.Sprintf("field %s.%s has no owner", rootName, f.Name)}
		}
		owner := fi.Owners[0]

		var fetch *Fetch
		if op.Operation == ast.Mutation {
			// consecutive fields of one owner share a fetch, order is kept
			if last != nil && last.Subgraph == owner {
				fetch = last
			}
		} else {
			fetch = byOwner[owner]
		}
		if fetch == nil {
			fetch = p.newFetch(owner, op.Operation)
			byOwner[owner] = fetch
			plan.Roots = append(plan.Roots, fetch)
		}
		last = fetch

		field, err := p.field(fetch, f, nil)
		if err != nil {
			return nil, err
		}
		fetch.Selection = append(fetch.Selection, field)
		fetch.Fields = append(fetch.Fields, f.Alias)
	}

	for _, f := range plan.Roots {
		p.print(f)
	}
	return plan, nil
}

type planner struct {
	sg     *Supergraph
	opCtx  *graphql.OperationContext
	nextID int
}

func (p *planner) newFetch(subgraph string, op ast.Operation) *Fetch {
	p.nextID++
	return &Fetch{ID: p.nextID, Subgraph: subgraph, Operation: op, usedVars: map[string]bool{}}
}

// field copies f into the selection of fetch and plans its sub-selection.
// path is the response path of the object f belongs to.
func (p *planner) field(fetch *Fetch, f graphql.CollectedField, path []string) (*ast.Field, error) {
	out := &ast.Field{Alias: f.Alias, Name: f.Name, Arguments: f.Arguments}
	for _, arg := range f.Arguments {
		collectVariables(arg.Value, fetch.usedVars)
	}

	if f.Definition == nil {
		return nil, &PlanError{Reason: fmt.Sprintf("field %s is not defined", f.Name)}
	}

	named := namedType(f.Definition.Type)
	t := p.sg.Types[named]
	if t == nil {
		return out, nil
	}

	switch t.Kind {
	case ast.Object:
		fieldPath := make([]string, len(path), len(path)+1)
		copy(fieldPath, path)
		fieldPath = append(fieldPath, f.Alias)

		sel, err := p.selection(fetch, t, f.Selections, fieldPath)
		if err != nil {
			return nil, err
		}
		out.SelectionSet = sel
	case ast.Interface, ast.Union:
		return nil, &PlanError{Reason: fmt.Sprintf("field %s returns abstract type %s", f.Name, named)}
	}
	return out, nil
}

// selection plans the fields of an object of type t found at path in the
// result of fetch. Fields fetch's subgraph cannot resolve move to entity
// fetches on their owners.
func (p *planner) selection(fetch *Fetch, t *TypeInfo, sels ast.SelectionSet, path []string) (ast.SelectionSet, error) {
	satisfies := []string{t.Name}
	satisfies = append(satisfies, t.interfaces...)

	var out ast.SelectionSet
	deps := map[string]*Fetch{}
	injected := map[string]bool{}

	for _, f := range graphql.CollectFields(p.opCtx, sels, satisfies) {
		if f.Name == "__typename" {
			continue
		}
		if t.Fields[f.Name] == nil {
			return nil, &PlanError{Reason: fmt.Sprintf("field %s.%s is served by no subgraph", t.Name, f.Name)}
		}

		if t.CanResolve(fetch.Subgraph, f.Name) {
			field, err := p.field(fetch, f, path)
			if err != nil {
				return nil, err
			}
			out = append(out, field)
			continue
		}

		owner, key, ok := t.Owner(f.Name, fetch.Subgraph)
		if !ok {
			return nil, &PlanError{Reason: fmt.Sprintf("field %s.%s cannot be reached from subgraph %s", t.Name, f.Name, fetch.Subgraph)}
		}

		dep := deps[owner]
		if dep == nil {
			dep = p.newFetch(owner, ast.Query)
			dep.Entity = true
			dep.TypeName = t.Name
			dep.Key = key
			dep.Path = path
			deps[owner] = dep
			fetch.Dependents = append(fetch.Dependents, dep)

			out = appendInjected(out, injected, typenameAlias, "__typename")
			for _, kf := range key.Fields {
				out = appendInjected(out, injected, keyAliasPrefix+kf, kf)
			}
		}

		field, err := p.field(dep, f, path)
		if err != nil {
			return nil, err
		}
		dep.Selection = append(dep.Selection, field)
		dep.Fields = append(dep.Fields, f.Alias)
	}

	// a selection of __typename alone still needs one field
	if len(out) == 0 {
		out = appendInjected(out, injected, typenameAlias, "__typename")
	}
	return out, nil
}

func appendInjected(sel ast.SelectionSet, injected map[string]bool, alias, name string) ast.SelectionSet {
	if injected[alias] {
		return sel
	}
	injected[alias] = true
	return append(sel, &ast.Field{Alias: alias, Name: name})
}

func collectVariables(v *ast.Value, into map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable {
		into[v.Raw] = true
		return
	}
	for _, child := range v.Children {
		collectVariables(child.Value, into)
	}
}

// print renders the subgraph operation of f and its dependents
func (p *planner) print(f *Fetch) {
	op := &ast.OperationDefinition{Operation: f.Operation, SelectionSet: f.Selection}

	if f.Entity {
		op.Operation = ast.Query
		op.VariableDefinitions = append(op.VariableDefinitions, &ast.VariableDefinition{
			Variable: representationsVar,
			Type:     ast.NonNullListType(ast.NonNullNamedType("_Any", nil), nil),
		})
		op.SelectionSet = ast.SelectionSet{&ast.Field{
			Alias: "_entities",
			Name:  "_entities",
			Arguments: ast.ArgumentList{{
				Name:  "representations",
				Value: &ast.Value{Kind: ast.Variable, Raw: representationsVar},
			}},
			SelectionSet: ast.SelectionSet{&ast.InlineFragment{
				TypeCondition: f.TypeName,
				SelectionSet:  f.Selection,
			}},
		}}
	}

	for _, def := range p.opCtx.Operation.VariableDefinitions {
		if f.usedVars[def.Variable] {
			op.VariableDefinitions = append(op.VariableDefinitions, &ast.VariableDefinition{
				Variable:     def.Variable,
				Type:         def.Type,
				DefaultValue: def.DefaultValue,
			})
			f.Variables = append(f.Variables, def.Variable)
		}
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{Operations: ast.OperationList{op}})
	f.Query = buf.String()

	for _, dep := range f.Dependents {
		p.print(dep)
	}
}
