package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"supergraph/graph/exec"
	"supergraph/graph/posts"
	"supergraph/graph/users"
	"supergraph/identity"
	"supergraph/middleware"
	"supergraph/services/post"
	"supergraph/services/user"
	"supergraph/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("gateway-test-secret")

// countingServer serves h and records every request it receives
type countingServer struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	signals []string
}

func newCountingServer(t *testing.T, h http.Handler) *countingServer {
	t.Helper()
	s := &countingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.mu.Lock()
		s.signals = append(s.signals, r.Header.Get(identity.SignalHeader))
		s.mu.Unlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *countingServer) reset() {
	s.calls.Store(0)
	s.mu.Lock()
	s.signals = nil
	s.mu.Unlock()
}

type testFederation struct {
	gw         *Gateway
	users      *user.UserService
	posts      *post.PostService
	usersSrv   *countingServer
	postsSrv   *countingServer
	authHeader string
}

func newFederation(t *testing.T) *testFederation {
	t.Helper()
	utils.InitTestLogger()

	f := &testFederation{
		users: user.NewUserService().WithHashCost(bcrypt.MinCost),
		posts: post.NewPostService(),
	}

	usersGraph, err := users.NewSubgraph(f.users)
	require.NoError(t, err)
	postsGraph, err := posts.NewSubgraph(f.posts)
	require.NoError(t, err)

	f.usersSrv = newCountingServer(t, middleware.IdentityMiddleware(exec.NewServer(usersGraph.Schema)))
	f.postsSrv = newCountingServer(t, middleware.IdentityMiddleware(exec.NewServer(postsGraph.Schema)))

	verifier, err := identity.NewJWTVerifier(identity.JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	f.gw = New(Options{
		Subgraphs: []SubgraphDescriptor{
			{Name: "users", URL: f.usersSrv.URL},
			{Name: "posts", URL: f.postsSrv.URL},
		},
		HTTPClient:    &http.Client{Timeout: 5 * time.Second},
		Identity:      identity.NewBuilder("Authorization", verifier),
		Introspection: true,
	})
	require.NoError(t, f.gw.Start(t.Context()))

	token, err := identity.SignToken(testSecret, identity.Principal{ID: "u1", Email: "u1@example.com"}, time.Hour)
	require.NoError(t, err)
	f.authHeader = "Bearer " + token

	f.usersSrv.reset()
	f.postsSrv.reset()
	return f
}

func (f *testFederation) seed(t *testing.T) {
	t.Helper()
	ctx := t.Context()

	for _, in := range []post.CreateInput{
		{ID: "p1", Body: "hi", AuthorID: "u1"},
		{ID: "p2", Body: "other", AuthorID: "u2"},
		{ID: "p3", Body: "again", AuthorID: "u1"},
	} {
		_, err := f.posts.Create(ctx, in)
		require.NoError(t, err)
	}
	for _, in := range []user.CreateInput{
		{ID: "u1", Email: "u1@example.com"},
		{ID: "u2", Email: "u2@example.com"},
	} {
		_, err := f.users.Create(ctx, in)
		require.NoError(t, err)
	}
}

type gqlError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (f *testFederation) query(t *testing.T, query string, vars map[string]any) (int, gqlResponse) {
	t.Helper()
	return doRequest(t, f.gw.Handler(), query, vars, f.authHeader)
}

func doRequest(t *testing.T, h http.Handler, query string, vars map[string]any, auth string) (int, gqlResponse) {
	t.Helper()
	return doRequestContext(t, t.Context(), h, query, vars, auth)
}

func doRequestContext(t *testing.T, ctx context.Context, h http.Handler, query string, vars map[string]any, auth string) (int, gqlResponse) {
	t.Helper()

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(string(body))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestUnauthenticatedRequestNeverReachesSubgraphs(t *testing.T) {
	f := newFederation(t)

	tests := []struct {
		name string
		auth string
	}{
		{"no credential", ""},
		{"invalid token", "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doRequest(t, f.gw.Handler(), `{ posts { id } }`, nil, tt.auth)

			assert.Equal(t, http.StatusUnauthorized, status)
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, CodeUnauthenticated, resp.Errors[0].Extensions["code"])
			assert.Equal(t, int32(0), f.usersSrv.calls.Load())
			assert.Equal(t, int32(0), f.postsSrv.calls.Load())
		})
	}
}

func TestPostUserThroughOneHop(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	status, resp := f.query(t, `{ post(id: "p1") { body user { id } } }`, nil)

	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"post":{"body":"hi","user":{"id":"u1"}}}`, string(resp.Data))
	assert.Equal(t, int32(1), f.postsSrv.calls.Load(), "one base call")
	assert.Equal(t, int32(1), f.usersSrv.calls.Load(), "one reference-resolution hop")
}

func TestOwnedFieldsShareOneHop(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ a: post(id: "p1") { user { id email } } b: post(id: "p3") { user { email } } }`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"a":{"user":{"id":"u1","email":"u1@example.com"}},"b":{"user":{"email":"u1@example.com"}}}`, string(resp.Data))
	assert.Equal(t, int32(1), f.postsSrv.calls.Load())
	assert.Equal(t, int32(2), f.usersSrv.calls.Load(), "one hop per response path")
}

func TestMissingPostIsNull(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ missing: post(id: "missing") { body user { email } } found: post(id: "p2") { body } }`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"missing":null,"found":{"body":"other"}}`, string(resp.Data))
	assert.Equal(t, int32(0), f.usersSrv.calls.Load())
}

func TestUnknownAuthorIsNull(t *testing.T) {
	f := newFederation(t)
	_, err := f.posts.Create(t.Context(), post.CreateInput{ID: "p9", Body: "orphan", AuthorID: "ghost"})
	require.NoError(t, err)

	_, resp := f.query(t, `{ post(id: "p9") { body user { id } } }`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"post":{"body":"orphan","user":null}}`, string(resp.Data))
}

func TestUserPostsInCreationOrder(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ user(id: "u1") { email posts { id body } } }`, nil)

	require.Empty(t, resp.Errors)
	assert.Equal(t,
		`{"user":{"email":"u1@example.com","posts":[{"id":"p1","body":"hi"},{"id":"p3","body":"again"}]}}`,
		string(resp.Data))
}

func TestNestedHopsAcrossLists(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ users { id posts { id user { email } } } }`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"users":[
		{"id":"u1","posts":[{"id":"p1","user":{"email":"u1@example.com"}},{"id":"p3","user":{"email":"u1@example.com"}}]},
		{"id":"u2","posts":[{"id":"p2","user":{"email":"u2@example.com"}}]}
	]}`, string(resp.Data))
	// users root, posts hop, users hop
	assert.Equal(t, int32(2), f.usersSrv.calls.Load())
	assert.Equal(t, int32(1), f.postsSrv.calls.Load())
}

func TestAliasesTypenameAndVariables(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `query Lookup($id: ID!) {
		__typename
		entry: post(id: $id) { __typename text: body author: user { kind: __typename mail: email } }
	}`, map[string]any{"id": "p1"})

	require.Empty(t, resp.Errors)
	assert.Equal(t,
		`{"__typename":"Query","entry":{"__typename":"Post","text":"hi","author":{"kind":"User","mail":"u1@example.com"}}}`,
		string(resp.Data))
}

func TestIdentityIsForwarded(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ me { id email } }`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"me":{"id":"u1","email":"u1@example.com"}}`, string(resp.Data))

	want := identity.Encode(identity.NewContext(identity.Principal{ID: "u1", Email: "u1@example.com"}))
	f.usersSrv.mu.Lock()
	defer f.usersSrv.mu.Unlock()
	assert.Equal(t, []string{want}, f.usersSrv.signals)
}

func TestMutationThroughGateway(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `mutation {
		createPost(createPostInput: {id: "p4", body: "new", authorId: "u2"}) { id user { email } }
	}`, nil)

	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"createPost":{"id":"p4","user":{"email":"u2@example.com"}}}`, string(resp.Data))

	created, err := f.posts.FindByID(t.Context(), "p4")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "u2", created.AuthorID)
}

func TestUsersDownNullsExtensionFields(t *testing.T) {
	f := newFederation(t)
	f.seed(t)
	f.usersSrv.Close()

	status, resp := f.query(t, `{ post(id: "p1") { body authorId user { email } } }`, nil)

	assert.Equal(t, http.StatusOK, status)
	// email is non-null, so its null takes the nullable user with it
	assert.JSONEq(t, `{"post":{"body":"hi","authorId":"u1","user":null}}`, string(resp.Data))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []any{"post", "user", "email"}, resp.Errors[0].Path)
	assert.Equal(t, CodeSubgraphUnreachable, resp.Errors[0].Extensions["code"])
	assert.Equal(t, "users", resp.Errors[0].Extensions["subgraph"])
	assert.NotNil(t, resp.Errors[0].Extensions["step"])
}

func TestPostsDownKeepsSiblingRoots(t *testing.T) {
	f := newFederation(t)
	f.seed(t)
	f.postsSrv.Close()

	_, resp := f.query(t, `{ users { id } posts { id } }`, nil)

	assert.JSONEq(t, `{"users":[{"id":"u1"},{"id":"u2"}],"posts":null}`, string(resp.Data))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []any{"posts"}, resp.Errors[0].Path)
	assert.Equal(t, "posts", resp.Errors[0].Extensions["subgraph"])
}

func TestValidationAgainstSupergraph(t *testing.T) {
	f := newFederation(t)

	status, resp := f.query(t, `{ post(id: "p1") { nope } }`, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, CodeValidationFailed, resp.Errors[0].Extensions["code"])
	assert.Equal(t, int32(0), f.postsSrv.calls.Load())
}

func TestIntrospectionIsAnsweredByGateway(t *testing.T) {
	f := newFederation(t)

	status, resp := f.query(t, `{ __schema { queryType { name } } }`, nil)

	assert.Equal(t, http.StatusOK, status)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"__schema":{"queryType":{"name":"Query"}}}`, string(resp.Data))
	assert.Equal(t, int32(0), f.usersSrv.calls.Load())
	assert.Equal(t, int32(0), f.postsSrv.calls.Load())
}

func TestIntrospectionNextToFederatedFields(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	_, resp := f.query(t, `{ users { id } post: __type(name: "Post") { name kind } }`, nil)

	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"users":[{"id":"u1"},{"id":"u2"}],"post":{"name":"Post","kind":"OBJECT"}}`, string(resp.Data))
	assert.Equal(t, int32(1), f.usersSrv.calls.Load())
	assert.Equal(t, int32(0), f.postsSrv.calls.Load())
}

func TestIntrospectionDisabled(t *testing.T) {
	utils.InitTestLogger()

	var sdl atomic.Value
	sdl.Store(`type Query { a: String }`)
	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{{Name: "a", URL: sdlServer(t, &sdl).URL}},
		Identity:  identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})
	require.NoError(t, gw.Start(t.Context()))

	_, resp := doRequest(t, gw.Handler(), `{ __schema { queryType { name } } }`, nil, "anything")

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "introspection disabled", resp.Errors[0].Message)
	assert.Equal(t, []any{"__schema"}, resp.Errors[0].Path)
}

func TestCancelledRequestMergesNothing(t *testing.T) {
	f := newFederation(t)
	f.seed(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, resp := doRequestContext(t, ctx, f.gw.Handler(), `{ post(id: "p1") { body } }`, nil, f.authHeader)

	assert.JSONEq(t, `{"post":null}`, string(resp.Data))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeRequestCancelled, resp.Errors[0].Extensions["code"])
	assert.Equal(t, int32(0), f.postsSrv.calls.Load())
}

func TestSubgraphErrorsAreRelayed(t *testing.T) {
	utils.InitTestLogger()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req subgraphRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Query, "_service") {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"_service": map[string]any{"sdl": `type Query { boom: String ok: String }`},
			}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"boom": nil, "ok": "yes"},
			"errors": []any{map[string]any{"message": "kaboom", "path": []any{"boom"}}},
		})
	}))
	defer srv.Close()

	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{{Name: "single", URL: srv.URL}},
		Identity:  identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})
	require.NoError(t, gw.Start(t.Context()))

	_, resp := doRequest(t, gw.Handler(), `{ ok boom }`, nil, "anything")

	assert.Equal(t, `{"ok":"yes","boom":null}`, string(resp.Data))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "kaboom", resp.Errors[0].Message)
	assert.Equal(t, []any{"boom"}, resp.Errors[0].Path)
	assert.Equal(t, CodeSubgraphError, resp.Errors[0].Extensions["code"])
	assert.Equal(t, "single", resp.Errors[0].Extensions["subgraph"])
}

func TestFailedRootFetchReportsEachFieldOnce(t *testing.T) {
	utils.InitTestLogger()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req subgraphRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Query, "_service") {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"_service": map[string]any{"sdl": `type Query { boom: String ok: String }`},
			}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data":   nil,
			"errors": []any{map[string]any{"message": "db down", "path": []any{"boom"}}},
		})
	}))
	defer srv.Close()

	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{{Name: "single", URL: srv.URL}},
		Identity:  identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})
	require.NoError(t, gw.Start(t.Context()))

	_, resp := doRequest(t, gw.Handler(), `{ ok boom }`, nil, "anything")

	assert.Equal(t, `{"ok":null,"boom":null}`, string(resp.Data))
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "db down", resp.Errors[0].Message)
	assert.Equal(t, []any{"boom"}, resp.Errors[0].Path)
	assert.Equal(t, []any{"ok"}, resp.Errors[1].Path)
	assert.Equal(t, CodeSubgraphError, resp.Errors[1].Extensions["code"])
}

// sdlServer serves a replaceable SDL through _service
func sdlServer(t *testing.T, sdl *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"_service": map[string]any{"sdl": sdl.Load().(string)},
		}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshKeepsLastGoodSupergraph(t *testing.T) {
	utils.InitTestLogger()

	var sdlA, sdlB atomic.Value
	sdlA.Store(`type Query { a: String }`)
	sdlB.Store(`type Query { b: String }`)

	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{
			{Name: "a", URL: sdlServer(t, &sdlA).URL},
			{Name: "b", URL: sdlServer(t, &sdlB).URL},
		},
		Identity: identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})
	require.NoError(t, gw.Start(t.Context()))
	first := gw.Supergraph()

	changed, err := gw.Refresh(t.Context())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, gw.Supergraph())

	// b now claims a field owned by a
	sdlB.Store(`type Query { a: String b: String }`)
	changed, err = gw.Refresh(t.Context())
	require.Error(t, err)
	assert.True(t, IsCompositionError(err))
	assert.False(t, changed)
	assert.Same(t, first, gw.Supergraph())

	sdlB.Store(`type Query { b: String c: Int }`)
	changed, err = gw.Refresh(t.Context())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotEqual(t, first.Version, gw.Supergraph().Version)
	assert.NotNil(t, gw.Supergraph().Schema.Query.Fields.ForName("c"))
}

func TestStartFailsOnConflict(t *testing.T) {
	utils.InitTestLogger()

	var sdl atomic.Value
	sdl.Store(`type Query { same: String }`)

	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{
			{Name: "a", URL: sdlServer(t, &sdl).URL},
			{Name: "b", URL: sdlServer(t, &sdl).URL},
		},
		Identity: identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})

	err := gw.Start(t.Context())
	require.Error(t, err)
	assert.True(t, IsCompositionError(err))
	assert.Nil(t, gw.Supergraph())

	_, resp := doRequest(t, gw.Handler(), `{ same }`, nil, "anything")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, CodeSupergraphNotReady, resp.Errors[0].Extensions["code"])
}

func TestStartFailsWhenSubgraphIsDown(t *testing.T) {
	utils.InitTestLogger()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	gw := New(Options{
		Subgraphs: []SubgraphDescriptor{{Name: "gone", URL: srv.URL}},
		Identity:  identity.NewBuilder("Authorization", identity.NewPresenceVerifier()),
	})

	err := gw.Start(t.Context())
	require.Error(t, err)
	assert.False(t, IsCompositionError(err))
}
