package gateway

import (
	"context"
	"fmt"

	"supergraph/identity"
)

const serviceSDLQuery = `query ServiceSDL { _service { sdl } }`

// FetchSDL asks a subgraph for the SDL it serves through _service
func FetchSDL(ctx context.Context, client *SubgraphClient, d SubgraphDescriptor) (SubgraphSchema, error) {
	resp, err := client.Do(ctx, d, subgraphRequest{Query: serviceSDLQuery, OperationName: "ServiceSDL"}, identity.Anonymous)
	if err != nil {
		return SubgraphSchema{}, err
	}

	service, _ := resp.Data["_service"].(map[string]any)
	sdl, _ := service["sdl"].(string)
	if sdl == "" {
		return SubgraphSchema{}, &FetchError{Kind: SubgraphError, Subgraph: d.Name, Err: fmt.Errorf("_service.sdl is empty")}
	}

	return SubgraphSchema{Name: d.Name, URL: d.URL, SDL: sdl}, nil
}
