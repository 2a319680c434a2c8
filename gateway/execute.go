package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"supergraph/graph/exec"
	"supergraph/identity"
	"supergraph/middleware"
	"supergraph/utils"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// execution runs one query plan. mu guards data and errs; sub-requests are
// sent without holding it.
type execution struct {
	client *SubgraphClient
	sg     *Supergraph
	plan   *QueryPlan
	opCtx  *graphql.OperationContext
	idCtx  identity.Context

	mu        sync.Mutex
	data      map[string]any
	errs      gqlerror.List
	cancelled bool
}

func newExecution(client *SubgraphClient, sg *Supergraph, plan *QueryPlan, opCtx *graphql.OperationContext, idCtx identity.Context) *execution {
	return &execution{
		client: client,
		sg:     sg,
		plan:   plan,
		opCtx:  opCtx,
		idCtx:  idCtx,
		data:   map[string]any{},
	}
}

// target is one object an entity fetch merges into
type target struct {
	obj  map[string]any
	path ast.Path
	set  func(any)
}

// run executes the plan and shapes the merged data. local resolves the
// introspection root fields, which no subgraph serves.
func (e *execution) run(ctx context.Context, local *exec.Schema) *graphql.Response {
	if e.plan.Operation == ast.Mutation {
		for _, f := range e.plan.Roots {
			e.runFetch(ctx, f)
		}
	} else {
		e.runConcurrently(ctx, e.plan.Roots)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled || ctx.Err() != nil {
		e.errs = append(e.errs, newError(ctx, CodeRequestCancelled, messageRequestCancelled, nil, nil, nil))
	}

	rootName := "Query"
	if e.plan.Operation == ast.Mutation {
		rootName = "Mutation"
	}
	shaped, _ := shape(e.opCtx, e.sg, e.data, rootName, e.opCtx.Operation.SelectionSet, true)

	if e.plan.Operation == ast.Query && local != nil {
		var fields []graphql.CollectedField
		for _, f := range graphql.CollectFields(e.opCtx, e.opCtx.Operation.SelectionSet, []string{rootName}) {
			if isIntrospectionField(f.Name) {
				fields = append(fields, f)
			}
		}
		if len(fields) > 0 {
			resolved := local.ResolveRootFields(ctx, fields)
			for _, key := range resolved.Keys() {
				v, _ := resolved.Get(key)
				shaped.Set(key, v)
			}
		}
	}

	resp := &graphql.Response{Errors: e.errs}
	data, err := json.Marshal(shaped)
	if err != nil {
		utils.Logger.Error("Failed to encode gateway response", zap.Error(err))
		resp.Errors = append(resp.Errors, &gqlerror.Error{Message: err.Error(), Extensions: map[string]any{"code": exec.CodeInternal}})
		return resp
	}
	resp.Data = data
	return resp
}

func (e *execution) runConcurrently(ctx context.Context, fetches []*Fetch) {
	if len(fetches) == 1 {
		e.runFetch(ctx, fetches[0])
		return
	}

	var wg sync.WaitGroup
	for _, f := range fetches {
		wg.Add(1)
		go func(f *Fetch) {
			defer wg.Done()
			e.runFetch(ctx, f)
		}(f)
	}
	wg.Wait()
}

// runFetch sends f, merges its result and then runs its dependents. Nothing
// is merged once ctx is done.
func (e *execution) runFetch(ctx context.Context, f *Fetch) {
	if ctx.Err() != nil {
		e.markCancelled()
		return
	}

	d, ok := e.sg.Subgraph(f.Subgraph)
	if !ok {
		e.mu.Lock()
		e.fail(ctx, f, e.targetsLocked(f), &FetchError{Kind: SubgraphUnreachable, Subgraph: f.Subgraph, Err: fmt.Errorf("subgraph is not registered")}, nil)
		e.mu.Unlock()
		return
	}

	req := subgraphRequest{Query: f.Query, Variables: map[string]any{}}
	for _, name := range f.Variables {
		req.Variables[name] = e.opCtx.Variables[name]
	}

	var (
		targets []target
		repIdx  []int
	)
	if f.Entity {
		e.mu.Lock()
		targets = e.targetsLocked(f)
		e.mu.Unlock()

		var reps []map[string]any
		reps, repIdx = representations(f, targets)
		if len(reps) == 0 {
			return
		}
		req.Variables[representationsVar] = reps
	}

	log := utils.Logger.With(
		zap.String("subgraph", f.Subgraph),
		zap.Int("step", f.ID),
		zap.String("request_id", middleware.RequestIDFromContext(ctx)),
	)
	log.Debug("Sending sub-request", zap.String("query", oneLine(f.Query)))

	resp, err := e.client.Do(ctx, d, req, e.idCtx)

	if ctx.Err() != nil {
		e.markCancelled()
		return
	}

	e.mu.Lock()
	if !f.Entity {
		targets = e.targetsLocked(f)
	}

	if err == nil && f.Entity {
		err = e.mergeEntities(f, targets, repIdx, resp)
	} else if err == nil {
		mergeInto(e.data, resp.Data)
	}

	if err != nil {
		log.Warn("Sub-request failed", zap.Error(err))
		// a field the subgraph already reported an error for gets no second one
		var relayed []ast.Path
		if resp != nil {
			relayed = e.relayErrors(f, targets, repIdx, resp.Errors)
		}
		e.fail(ctx, f, targets, err, relayed)
		e.mu.Unlock()
		return
	}

	e.relayErrors(f, targets, repIdx, resp.Errors)
	e.mu.Unlock()

	e.runConcurrently(ctx, f.Dependents)
}

func (e *execution) markCancelled() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

// targetsLocked returns the objects f fills: the root data for root fetches,
// every object at f.Path (lists flattened) for entity fetches
func (e *execution) targetsLocked(f *Fetch) []target {
	if !f.Entity {
		return []target{{obj: e.data, set: func(any) {}}}
	}

	var out []target
	var walk func(v any, rest []string, path ast.Path, set func(any))
	walk = func(v any, rest []string, path ast.Path, set func(any)) {
		switch v := v.(type) {
		case []any:
			for i, item := range v {
				walk(item, rest, appendPath(path, ast.PathIndex(i)), func(x any) { v[i] = x })
			}
		case map[string]any:
			if len(rest) == 0 {
				out = append(out, target{obj: v, path: path, set: set})
				return
			}
			key := rest[0]
			walk(v[key], rest[1:], appendPath(path, ast.PathName(key)), func(x any) { v[key] = x })
		}
	}
	walk(e.data, f.Path, nil, func(any) {})
	return out
}

// representations builds the deduplicated _entities input of f. idx maps
// each target to its representation.
func representations(f *Fetch, targets []target) (reps []map[string]any, idx []int) {
	seen := map[string]int{}
	idx = make([]int, len(targets))

	for i, t := range targets {
		typename, _ := t.obj[typenameAlias].(string)
		if typename == "" {
			typename = f.TypeName
		}
		rep := map[string]any{"__typename": typename}
		complete := true
		for _, kf := range f.Key.Fields {
			v, ok := t.obj[keyAliasPrefix+kf]
			if !ok || v == nil {
				complete = false
				break
			}
			rep[kf] = v
		}
		if !complete {
			idx[i] = -1
			continue
		}

		raw, err := json.Marshal(rep)
		if err != nil {
			idx[i] = -1
			continue
		}
		if n, ok := seen[string(raw)]; ok {
			idx[i] = n
			continue
		}
		seen[string(raw)] = len(reps)
		idx[i] = len(reps)
		reps = append(reps, rep)
	}
	return reps, idx
}

// mergeEntities merges the _entities result into each target; a null entity
// nulls the target
func (e *execution) mergeEntities(f *Fetch, targets []target, idx []int, resp *subgraphResponse) error {
	list, ok := resp.Data["_entities"].([]any)
	if !ok {
		return &FetchError{Kind: SubgraphError, Subgraph: f.Subgraph, Err: fmt.Errorf("_entities missing from response")}
	}

	want := 0
	for _, n := range idx {
		if n >= want {
			want = n + 1
		}
	}
	if len(list) != want {
		return &FetchError{Kind: SubgraphError, Subgraph: f.Subgraph, Err: fmt.Errorf("returned %d entities for %d representations", len(list), want)}
	}

	for i, t := range targets {
		n := idx[i]
		if n < 0 {
			continue
		}
		entity, ok := list[n].(map[string]any)
		if !ok {
			t.set(nil)
			continue
		}
		mergeInto(t.obj, entity)
	}
	return nil
}

// fail nulls every field of f on its targets and records one error per
// field, unless an error in relayed already covers the field
func (e *execution) fail(ctx context.Context, f *Fetch, targets []target, err error, relayed []ast.Path) {
	kind := fetchErrorKind(err)
	messageID := messageSubgraphError
	if kind == SubgraphUnreachable {
		messageID = messageUnreachable
	}

	for _, t := range targets {
		for _, field := range f.Fields {
			t.obj[field] = nil
			path := appendPath(t.path, ast.PathName(field))
			if coveredBy(path, relayed) {
				continue
			}
			e.errs = append(e.errs, newError(ctx, string(kind), messageID,
				path,
				utils.TemplateData{"Subgraph": f.Subgraph},
				map[string]any{"subgraph": f.Subgraph, "step": f.ID},
			))
		}
	}
}

// relayErrors copies subgraph errors into the response with their paths
// rebased onto the client response, and returns those paths
func (e *execution) relayErrors(f *Fetch, targets []target, idx []int, errs []subgraphError) []ast.Path {
	var relayed []ast.Path
	add := func(err *gqlerror.Error) {
		e.errs = append(e.errs, err)
		relayed = append(relayed, err.Path)
	}

	for _, se := range errs {
		ext := map[string]any{}
		for k, v := range se.Extensions {
			ext[k] = v
		}
		if _, ok := ext["code"]; !ok {
			ext["code"] = CodeSubgraphError
		}
		ext["subgraph"] = f.Subgraph
		ext["step"] = f.ID

		path := toPath(se.Path)

		if !f.Entity {
			if len(path) == 0 && len(f.Fields) > 0 {
				path = ast.Path{ast.PathName(f.Fields[0])}
			}
			add(&gqlerror.Error{Message: se.Message, Path: path, Extensions: ext})
			continue
		}

		// _entities.<i>.rest -> <target path>.rest for every target of representation i
		n := -1
		if len(path) >= 2 {
			if i, ok := path[1].(ast.PathIndex); ok {
				n = int(i)
			}
		}
		rebased := false
		for ti, t := range targets {
			if n < 0 || idx[ti] != n {
				continue
			}
			p := append(append(ast.Path{}, t.path...), path[2:]...)
			add(&gqlerror.Error{Message: se.Message, Path: p, Extensions: ext})
			rebased = true
		}
		if !rebased && len(targets) > 0 && len(f.Fields) > 0 {
			add(&gqlerror.Error{
				Message:    se.Message,
				Path:       appendPath(targets[0].path, ast.PathName(f.Fields[0])),
				Extensions: ext,
			})
		}
	}
	return relayed
}

// coveredBy reports whether one of paths is path or lies below it
func coveredBy(path ast.Path, paths []ast.Path) bool {
	for _, p := range paths {
		if len(p) < len(path) {
			continue
		}
		covered := true
		for i := range path {
			if p[i] != path[i] {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

func isIntrospectionField(name string) bool {
	return strings.HasPrefix(name, "__") && name != "__typename"
}

func toPath(raw []any) ast.Path {
	var path ast.Path
	for _, el := range raw {
		switch v := el.(type) {
		case string:
			path = append(path, ast.PathName(v))
		case json.Number:
			if n, err := v.Int64(); err == nil {
				path = append(path, ast.PathIndex(int(n)))
			}
		case float64:
			path = append(path, ast.PathIndex(int(v)))
		}
	}
	return path
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

// mergeInto merges src into dst recursively. Values are copied so objects
// shared by deduplicated representations stay independent.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				mergeInto(dm, sm)
				continue
			}
		}
		dst[k] = cloneValue(v)
	}
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
