package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"supergraph/identity"
	"supergraph/middleware"
)

// maxResponseSize limits a subgraph response body
const maxResponseSize = 16 << 20

// SubgraphDescriptor is the registration entry of one subgraph
type SubgraphDescriptor struct {
	Name string
	URL  string
}

// FetchErrorKind classifies a failed sub-request
type FetchErrorKind string

const (
	SubgraphUnreachable FetchErrorKind = CodeSubgraphUnreachable
	SubgraphError       FetchErrorKind = CodeSubgraphError
)

// FetchError is returned when a subgraph cannot serve a sub-request
type FetchError struct {
	Kind     FetchErrorKind
	Subgraph string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("subgraph %s: %s: %v", e.Subgraph, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// fetchErrorKind returns the kind of err, SubgraphError when err is not a *FetchError
func fetchErrorKind(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return SubgraphError
}

type subgraphRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type subgraphError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type subgraphResponse struct {
	Data   map[string]any  `json:"data"`
	Errors []subgraphError `json:"errors,omitempty"`
}

// SubgraphClient sends GraphQL requests to subgraphs. Every request carries
// the serialized identity context and the request id.
type SubgraphClient struct {
	http *http.Client
}

// NewSubgraphClient wraps c, http.DefaultClient when nil
func NewSubgraphClient(c *http.Client) *SubgraphClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &SubgraphClient{http: c}
}

// Do posts req to the subgraph. A response without data is a SubgraphError;
// the response is still returned so its errors can be relayed.
func (c *SubgraphClient) Do(ctx context.Context, d SubgraphDescriptor, req subgraphRequest, idCtx identity.Context) (*subgraphResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &FetchError{Kind: SubgraphError, Subgraph: d.Name, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Kind: SubgraphUnreachable, Subgraph: d.Name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(identity.SignalHeader, identity.Encode(idCtx))
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(middleware.RequestIDHeader, id)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &FetchError{Kind: SubgraphUnreachable, Subgraph: d.Name, Err: err}
	}
	defer httpResp.Body.Close()

	var resp subgraphResponse
	dec := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseSize))
	dec.UseNumber()
	decodeErr := dec.Decode(&resp)

	if httpResp.StatusCode >= http.StatusInternalServerError && len(resp.Errors) == 0 {
		return nil, &FetchError{Kind: SubgraphUnreachable, Subgraph: d.Name, Err: fmt.Errorf("status %d", httpResp.StatusCode)}
	}
	if decodeErr != nil {
		return nil, &FetchError{Kind: SubgraphError, Subgraph: d.Name, Err: fmt.Errorf("status %d: decode response: %w", httpResp.StatusCode, decodeErr)}
	}
	if resp.Data == nil {
		msg := fmt.Sprintf("status %d: response has no data", httpResp.StatusCode)
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].Message
		}
		return &resp, &FetchError{Kind: SubgraphError, Subgraph: d.Name, Err: errors.New(msg)}
	}

	return &resp, nil
}
