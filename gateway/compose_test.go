package gateway

import (
	"strings"
	"testing"

	"supergraph/graph/posts"
	"supergraph/graph/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func federatedSchemas() []SubgraphSchema {
	return []SubgraphSchema{
		{Name: "users", URL: "http://users/graphql", SDL: users.SDL},
		{Name: "posts", URL: "http://posts/graphql", SDL: posts.SDL},
	}
}

func TestComposeUsersAndPosts(t *testing.T) {
	sg, err := Compose(federatedSchemas())
	require.NoError(t, err)

	user := sg.Types["User"]
	require.NotNil(t, user)
	assert.True(t, user.IsEntity())
	assert.Equal(t, []string{"posts", "users"}, user.Subgraphs)
	assert.Equal(t, []string{"users"}, user.Fields["id"].Owners)
	assert.Equal(t, []string{"users"}, user.Fields["email"].Owners)
	assert.Equal(t, []string{"posts"}, user.Fields["posts"].Owners)

	assert.True(t, user.Provides("posts", "id"), "key fields are available where declared")
	assert.False(t, user.CanResolve("posts", "id"), "an @external key is resolved by its owner")
	assert.False(t, user.Provides("posts", "email"))
	assert.True(t, user.CanResolve("posts", "posts"))

	owner, key, ok := user.Owner("email", "posts")
	require.True(t, ok)
	assert.Equal(t, "users", owner)
	assert.Equal(t, []string{"id"}, key.Fields)

	assert.Equal(t, []string{"posts"}, sg.Types["Query"].Fields["post"].Owners)
	assert.Equal(t, []string{"users"}, sg.Types["Mutation"].Fields["createUser"].Owners)

	require.NotNil(t, sg.Schema.Types["User"])
	assert.NotNil(t, sg.Schema.Types["User"].Fields.ForName("posts"))
	for _, internal := range []string{"@key", "@external", "@auth", "_entities", "_service", "_Any"} {
		assert.NotContains(t, sg.SDL, internal)
	}
	assert.Nil(t, sg.Schema.Types["_Entity"])

	d, ok := sg.Subgraph("posts")
	require.True(t, ok)
	assert.Equal(t, "http://posts/graphql", d.URL)
}

func TestComposeVersionIsStable(t *testing.T) {
	a, err := Compose(federatedSchemas())
	require.NoError(t, err)

	reversed := federatedSchemas()
	reversed[0], reversed[1] = reversed[1], reversed[0]
	b, err := Compose(reversed)
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.Equal(t, a.SDL, b.SDL)

	changed := federatedSchemas()
	changed[0].SDL += "\nextend type Query { ping: String }\n"
	c, err := Compose(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version, c.Version)
}

func TestComposeConflicts(t *testing.T) {
	tests := []struct {
		name      string
		schemas   []SubgraphSchema
		wantType  string
		wantField string
	}{
		{
			name: "same non-key field owned twice",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type User @key(fields: "id") { id: ID! email: String! } type Query { a: User }`},
				{Name: "b", SDL: `type User @key(fields: "id") { id: ID! email: String! } type Query { b: User }`},
			},
			wantType:  "User",
			wantField: "email",
		},
		{
			name: "same root field owned twice",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query { hello: String }`},
				{Name: "b", SDL: `type Query { hello: String }`},
			},
			wantType:  "Query",
			wantField: "hello",
		},
		{
			name: "entity field unreachable by key",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query { post: Post } type Post { id: ID! author: User } type User @key(fields: "id", resolvable: false) { id: ID! }`},
				{Name: "b", SDL: `type Query { b: Int } type User @key(fields: "email") { email: String! name: String }`},
			},
			wantType:  "User",
			wantField: "name",
		},
		{
			name: "kind mismatch",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query { a: Thing } type Thing { id: ID }`},
				{Name: "b", SDL: `type Query { b: Int } enum Thing { ONE }`},
			},
			wantType: "Thing",
		},
		{
			name: "undeclared field type",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query { a: Missing }`},
			},
			wantType:  "Query",
			wantField: "a",
		},
		{
			name: "invalid sdl",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query {`},
			},
		},
		{
			name: "shareable on one side only",
			schemas: []SubgraphSchema{
				{Name: "a", SDL: `type Query { a: Int } type Info @key(fields: "id") { id: ID! note: String @shareable }`},
				{Name: "b", SDL: `type Query { b: Info } type Info @key(fields: "id") { id: ID! note: String }`},
			},
			wantType:  "Info",
			wantField: "note",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg, err := Compose(tt.schemas)
			require.Error(t, err)
			assert.Nil(t, sg)
			require.True(t, IsCompositionError(err), err.Error())

			conflicts := err.(*CompositionError).Conflicts()
			require.NotEmpty(t, conflicts)
			if tt.wantType == "" {
				return
			}

			found := false
			for _, c := range conflicts {
				if c.Type == tt.wantType && c.Field == tt.wantField {
					found = true
				}
			}
			assert.True(t, found, "no conflict on %s.%s in %v", tt.wantType, tt.wantField, err)
		})
	}
}

func TestComposeAllowsSharedKeysAndShareable(t *testing.T) {
	sg, err := Compose([]SubgraphSchema{
		{Name: "a", SDL: `type Query { a: Info } type Info @key(fields: "id") { id: ID! note: String @shareable }`},
		{Name: "b", SDL: `type Query { b: Info } type Info @key(fields: "id") { id: ID! note: String @shareable extra: Int }`},
	})
	require.NoError(t, err)

	info := sg.Types["Info"]
	assert.Equal(t, []string{"a", "b"}, info.Fields["id"].Owners)
	assert.Equal(t, []string{"a", "b"}, info.Fields["note"].Owners)
	assert.Equal(t, []string{"id", "note", "extra"}, info.FieldNames())
	assert.True(t, strings.Contains(sg.SDL, "extra: Int"))
}

func TestComposeReportsEveryConflict(t *testing.T) {
	_, err := Compose([]SubgraphSchema{
		{Name: "a", SDL: `type Query { x: Int y: Int }`},
		{Name: "b", SDL: `type Query { x: Int y: Int }`},
	})
	require.Error(t, err)
	assert.Len(t, err.(*CompositionError).Conflicts(), 2)
}
