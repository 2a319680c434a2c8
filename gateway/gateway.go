// Package gateway composes the supergraph from the registered subgraphs and
// serves client operations against it: each operation is planned into
// sub-requests, dispatched with the caller's identity and merged back into
// one response.
package gateway

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"supergraph/identity"
	"supergraph/redis"
	"supergraph/utils"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Options configures a Gateway
type Options struct {
	Subgraphs []SubgraphDescriptor
	// HTTPClient sends sub-requests, http.DefaultClient when nil
	HTTPClient *http.Client
	Identity   *identity.Builder
	// Introspection answers __schema and __type queries, off in production
	Introspection bool
}

// Gateway serves the current supergraph. A failed refresh keeps the last
// good supergraph.
type Gateway struct {
	subgraphs     []SubgraphDescriptor
	client        *SubgraphClient
	identity      *identity.Builder
	introspection bool

	current   atomic.Pointer[serving]
	refreshMu sync.Mutex
}

// serving is the supergraph being served together with its handler
type serving struct {
	sg  *Supergraph
	srv *handler.Server
}

// New creates a gateway; Start must succeed before it serves traffic
func New(opts Options) *Gateway {
	subgraphs := make([]SubgraphDescriptor, len(opts.Subgraphs))
	copy(subgraphs, opts.Subgraphs)
	sort.Slice(subgraphs, func(i, j int) bool { return subgraphs[i].Name < subgraphs[j].Name })

	return &Gateway{
		subgraphs:     subgraphs,
		client:        NewSubgraphClient(opts.HTTPClient),
		identity:      opts.Identity,
		introspection: opts.Introspection,
	}
}

// Start performs the initial composition. Its error is fatal.
func (g *Gateway) Start(ctx context.Context) error {
	_, err := g.Refresh(ctx)
	return err
}

// Supergraph returns the supergraph being served, nil before Start
func (g *Gateway) Supergraph() *Supergraph {
	if s := g.current.Load(); s != nil {
		return s.sg
	}
	return nil
}

// Refresh fetches every subgraph SDL and recomposes. changed is false when
// the schemas did not change or composition failed.
func (g *Gateway) Refresh(ctx context.Context) (changed bool, err error) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	schemas, err := g.fetchSchemas(ctx)
	if err != nil {
		utils.Logger.Error("Failed to fetch subgraph schemas", zap.Error(err))
		return false, err
	}

	current := g.Supergraph()
	if current != nil && current.Version == schemaVersion(schemas) {
		utils.Logger.Debug("Supergraph unchanged", zap.String("version", current.Version))
		return false, nil
	}

	sg, err := Compose(schemas)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if current != nil {
			fields = append(fields, zap.String("serving_version", current.Version))
		}
		utils.Logger.Error("Supergraph composition failed", fields...)
		return false, err
	}

	g.current.Store(&serving{sg: sg, srv: newServer(sg, g.client, g.introspection)})

	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	utils.Logger.Info("Supergraph composed",
		zap.String("version", sg.Version),
		zap.Strings("subgraphs", names),
		zap.Int("types", len(sg.Types)),
	)
	return true, nil
}

// fetchSchemas fetches all subgraph SDLs concurrently, sorted by name
func (g *Gateway) fetchSchemas(ctx context.Context) ([]SubgraphSchema, error) {
	schemas := make([]SubgraphSchema, len(g.subgraphs))
	errs := make([]error, len(g.subgraphs))

	var wg sync.WaitGroup
	for i, d := range g.subgraphs {
		wg.Add(1)
		go func(i int, d SubgraphDescriptor) {
			defer wg.Done()
			schemas[i], errs[i] = FetchSDL(ctx, g.client, d)
		}(i, d)
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return schemas, result.ErrorOrNil()
}

// Watch refreshes on every tick of interval (disabled when zero) and on every
// schema event until ctx is done
func (g *Gateway) Watch(ctx context.Context, interval time.Duration, events <-chan redis.SchemaEvent) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			g.refreshLogged(ctx, "poll")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			utils.Logger.Info("Schema change announced",
				zap.String("subgraph", ev.Service),
				zap.String("version", ev.Version),
			)
			g.refreshLogged(ctx, "event")
		}
	}
}

func (g *Gateway) refreshLogged(ctx context.Context, trigger string) {
	changed, err := g.Refresh(ctx)
	if err != nil {
		// Refresh already logged the cause, the last good supergraph stays
		return
	}
	if changed {
		utils.Logger.Info("Supergraph refreshed", zap.String("trigger", trigger))
	}
}
