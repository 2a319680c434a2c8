package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"supergraph/gateway"
	"supergraph/graph/posts"
	"supergraph/graph/users"
	"supergraph/identity"
	"supergraph/services/post"
	"supergraph/services/user"
	"supergraph/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type response struct {
	Data   map[string]any `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

func newTestGateway(t *testing.T) (*httptest.Server, *post.PostService) {
	t.Helper()
	utils.InitTestLogger()

	postService := post.NewPostService()
	usersGraph, err := users.NewSubgraph(user.NewUserService().WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	postsGraph, err := posts.NewSubgraph(postService)
	require.NoError(t, err)

	usersSrv := httptest.NewServer(NewSubgraphRouter(usersGraph.Schema))
	t.Cleanup(usersSrv.Close)
	postsSrv := httptest.NewServer(NewSubgraphRouter(postsGraph.Schema))
	t.Cleanup(postsSrv.Close)

	gw := gateway.New(gateway.Options{
		Subgraphs: []gateway.SubgraphDescriptor{
			{Name: "users", URL: usersSrv.URL + "/graphql"},
			{Name: "posts", URL: postsSrv.URL + "/graphql"},
		},
		Identity:      identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
		Introspection: true,
	})
	require.NoError(t, gw.Start(t.Context()))

	srv := httptest.NewServer(NewGatewayRouter(gw, true))
	t.Cleanup(srv.Close)
	return srv, postService
}

func postJSON(t *testing.T, url, body string, headers map[string]string) (*http.Response, response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestGatewayRouterServesQueries(t *testing.T) {
	srv, postService := newTestGateway(t)
	_, err := postService.Create(t.Context(), post.CreateInput{ID: "p1", Body: "hi", AuthorID: "u1"})
	require.NoError(t, err)

	resp, out := postJSON(t, srv.URL+"/query", `{"query":"{ post(id: \"p1\") { body } }"}`,
		map[string]string{"Authorization": "anything", "X-Request-Id": "req-1"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-Id"))
	assert.Empty(t, out.Errors)
	assert.Equal(t, map[string]any{"post": map[string]any{"body": "hi"}}, out.Data)
}

func TestGatewayRouterAnswersIntrospection(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp, out := postJSON(t, srv.URL+"/query", `{"query":"{ __schema { queryType { name } } }"}`,
		map[string]string{"Authorization": "anything"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out.Errors)
	assert.Equal(t, map[string]any{"__schema": map[string]any{"queryType": map[string]any{"name": "Query"}}}, out.Data)
}

func TestGatewayRouterRejectsMissingCredential(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp, out := postJSON(t, srv.URL+"/query", `{"query":"{ posts { id } }"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, gateway.CodeUnauthenticated, out.Errors[0].Extensions["code"])
	assert.Nil(t, out.Data)
}

func TestGatewayRouterHidesPlaygroundInProduction(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubgraphRouterAdvertisesSDL(t *testing.T) {
	utils.InitTestLogger()
	usersGraph, err := users.NewSubgraph(user.NewUserService())
	require.NoError(t, err)

	srv := httptest.NewServer(NewSubgraphRouter(usersGraph.Schema))
	defer srv.Close()

	resp, out := postJSON(t, srv.URL+"/graphql", `{"query":"{ _service { sdl } }"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, out.Errors)

	service := out.Data["_service"].(map[string]any)
	assert.Contains(t, service["sdl"], `@key(fields: "id")`)
}

func TestLocalizedErrors(t *testing.T) {
	utils.InitTestLogger()
	_, err := InitI18n()
	require.NoError(t, err)
	t.Cleanup(func() { utils.SetI18nBundle(nil) })

	srv, _ := newTestGateway(t)

	_, out := postJSON(t, srv.URL+"/query", `{"query":"{ posts { id } }"}`, map[string]string{"Accept-Language": "ru"})
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "Требуется аутентификация", out.Errors[0].Message)

	_, out = postJSON(t, srv.URL+"/query", `{"query":"{ posts { id } }"}`, map[string]string{"Accept-Language": "en-US,en;q=0.9"})
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "Authentication required", out.Errors[0].Message)
}

func TestLoadTranslationsWithoutDirectory(t *testing.T) {
	utils.InitTestLogger()
	bundle, err := InitI18n()
	require.NoError(t, err)
	t.Cleanup(func() { utils.SetI18nBundle(nil) })

	assert.NoError(t, LoadTranslations(bundle, filepath.Join(t.TempDir(), "missing")))
}

func TestExportSchema(t *testing.T) {
	utils.InitTestLogger()
	path := filepath.Join(t.TempDir(), "out", "supergraph.graphql")

	require.NoError(t, ExportSchema(path, "type Query { a: Int }\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "type Query { a: Int }\n", string(data))
}

func TestGatewayRouterServesPlaygroundOutsideProduction(t *testing.T) {
	utils.InitTestLogger()
	srv := httptest.NewServer(NewGatewayRouter(gateway.New(gateway.Options{}), false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
