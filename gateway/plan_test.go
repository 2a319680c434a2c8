package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/validator"
)

func planQuery(t *testing.T, query string, vars map[string]any) (*QueryPlan, error) {
	t.Helper()
	sg, err := Compose(federatedSchemas())
	require.NoError(t, err)

	doc, errs := gqlparser.LoadQuery(sg.Schema, query)
	require.Empty(t, errs)
	op := doc.Operations[0]

	coerced, verr := validator.VariableValues(sg.Schema, op, vars)
	require.Nil(t, verr)

	return Plan(sg, &graphql.OperationContext{RawQuery: query, Variables: coerced, Doc: doc, Operation: op})
}

func TestPlanEntityHop(t *testing.T) {
	plan, err := planQuery(t, `{ post(id: "p1") { body user { id } } }`, nil)
	require.NoError(t, err)

	require.Len(t, plan.Roots, 1)
	root := plan.Roots[0]
	assert.Equal(t, "posts", root.Subgraph)
	assert.Equal(t, []string{"post"}, root.Fields)
	assert.Contains(t, root.Query, "_typename: __typename")
	assert.Contains(t, root.Query, "_key_id: id")

	require.Len(t, root.Dependents, 1)
	dep := root.Dependents[0]
	assert.True(t, dep.Entity)
	assert.Equal(t, "users", dep.Subgraph)
	assert.Equal(t, "User", dep.TypeName)
	assert.Equal(t, []string{"post", "user"}, dep.Path)
	assert.Equal(t, []string{"id"}, dep.Fields)
	assert.Equal(t, []string{"id"}, dep.Key.Fields)
	assert.Contains(t, dep.Query, "$_representations: [_Any!]!")
	assert.Contains(t, dep.Query, "_entities(representations: $_representations)")
	assert.Contains(t, dep.Query, "... on User")
}

func TestPlanGroupsQueryRootsByOwner(t *testing.T) {
	plan, err := planQuery(t, `{ users { id } posts { id } me { email } }`, nil)
	require.NoError(t, err)

	require.Len(t, plan.Roots, 2)
	assert.Equal(t, "users", plan.Roots[0].Subgraph)
	assert.Equal(t, []string{"users", "me"}, plan.Roots[0].Fields)
	assert.Equal(t, "posts", plan.Roots[1].Subgraph)
	assert.Empty(t, plan.Roots[0].Dependents)
}

func TestPlanKeepsMutationOrder(t *testing.T) {
	plan, err := planQuery(t, `mutation {
		a: createUser(createUserInput: {id: "u1", email: "a@example.com", password: "x"}) { id }
		b: createPost(createPostInput: {id: "p1", body: "hi", authorId: "u1"}) { id }
		c: createUser(createUserInput: {id: "u2", email: "b@example.com", password: "x"}) { id }
	}`, nil)
	require.NoError(t, err)

	require.Len(t, plan.Roots, 3)
	var owners []string
	for _, f := range plan.Roots {
		owners = append(owners, f.Subgraph)
	}
	assert.Equal(t, []string{"users", "posts", "users"}, owners)
	assert.Contains(t, plan.Roots[0].Query, "mutation")
}

func TestPlanForwardsUsedVariables(t *testing.T) {
	plan, err := planQuery(t, `query Q($id: ID!, $unused: ID) { post(id: $id) { body } }`, map[string]any{"id": "p1"})
	require.NoError(t, err)

	root := plan.Roots[0]
	assert.Equal(t, []string{"id"}, root.Variables)
	assert.Contains(t, root.Query, "$id: ID!")
	assert.NotContains(t, root.Query, "unused")
}

func TestPlanAppliesSkipAndFragments(t *testing.T) {
	plan, err := planQuery(t, `query Q($hide: Boolean!) {
		post(id: "p1") { ...Meta @skip(if: $hide) body }
	}
	fragment Meta on Post { authorId }`, map[string]any{"hide": true})
	require.NoError(t, err)

	query := plan.Roots[0].Query
	assert.Contains(t, query, "body")
	assert.NotContains(t, query, "authorId")
}

func TestPlanTypenameOnlySelection(t *testing.T) {
	plan, err := planQuery(t, `{ post(id: "p1") { user { __typename } } }`, nil)
	require.NoError(t, err)

	root := plan.Roots[0]
	assert.Empty(t, root.Dependents)
	assert.Contains(t, root.Query, "_typename: __typename")
	assert.NotContains(t, root.Query, "_key_")
}

func TestPlanSkipsIntrospectionFields(t *testing.T) {
	plan, err := planQuery(t, `{ __schema { queryType { name } } users { id } }`, nil)
	require.NoError(t, err)

	require.Len(t, plan.Roots, 1)
	assert.Equal(t, []string{"users"}, plan.Roots[0].Fields)
	assert.NotContains(t, plan.Roots[0].Query, "__schema")
}

func TestPlanFailureReasonUnwraps(t *testing.T) {
	err := fmt.Errorf("planning: %w", &PlanError{Reason: "field Query.nope is served by no subgraph"})

	assert.Equal(t, "field Query.nope is served by no subgraph", planFailureReason(err))
	assert.Equal(t, "boom", planFailureReason(errors.New("boom")))
}

func TestQueryPlanString(t *testing.T) {
	plan, err := planQuery(t, `{ post(id: "p1") { user { email } } }`, nil)
	require.NoError(t, err)

	s := plan.String()
	assert.Contains(t, s, "QueryPlan(query)")
	assert.Contains(t, s, "Fetch#1(posts)")
	assert.Contains(t, s, "Fetch#2(users, User @ post.user)")
}
