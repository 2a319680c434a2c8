package database

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID       string
	ParentID string
}

func newTestStore() *Store[record] {
	return NewStore("record", func(r record) string { return r.ID })
}

func parentOf(r record) string { return r.ParentID }

func TestStoreCreateAndFind(t *testing.T) {
	s := newTestStore()

	created, err := s.Create(record{ID: "r1", ParentID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, record{ID: "r1", ParentID: "p1"}, created)

	found, err := s.FindByKey("r1")
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = s.FindByKey("missing")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, s.Len())
}

func TestStoreRejectsKeyCollision(t *testing.T) {
	s := newTestStore()

	_, err := s.Create(record{ID: "r1", ParentID: "p1"})
	require.NoError(t, err)

	_, err = s.Create(record{ID: "r1", ParentID: "p2"})
	require.Error(t, err)
	assert.True(t, IsKeyCollision(err))

	// the original record is untouched
	found, err := s.FindByKey("r1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ParentID)
	assert.Equal(t, 1, s.Len())
}

func TestStoreFindByForeignKey(t *testing.T) {
	s := newTestStore()
	for _, r := range []record{
		{ID: "a", ParentID: "p1"},
		{ID: "b", ParentID: "p2"},
		{ID: "c", ParentID: "p1"},
	} {
		_, err := s.Create(r)
		require.NoError(t, err)
	}

	got := s.FindByForeignKey(parentOf, "p1")
	assert.Equal(t, []record{{ID: "a", ParentID: "p1"}, {ID: "c", ParentID: "p1"}}, got)

	none := s.FindByForeignKey(parentOf, "nobody")
	assert.NotNil(t, none)
	assert.Empty(t, none)

	grouped := s.FindByForeignKeys(parentOf, []string{"p1", "p2", "p3"})
	assert.Len(t, grouped["p1"], 2)
	assert.Len(t, grouped["p2"], 1)
	assert.NotNil(t, grouped["p3"])
	assert.Empty(t, grouped["p3"])
}

func TestStoreFindAllIsSnapshot(t *testing.T) {
	s := newTestStore()
	_, err := s.Create(record{ID: "a"})
	require.NoError(t, err)

	all := s.FindAll()
	all[0].ID = "mutated"

	found, err := s.FindByKey("a")
	require.NoError(t, err)
	assert.Equal(t, "a", found.ID)
}

func TestStoreConcurrentCreate(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(record{ID: fmt.Sprintf("r%d", i), ParentID: "p"})
			assert.NoError(t, err)
			_ = s.FindByForeignKey(parentOf, "p")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
	assert.Len(t, s.FindByForeignKey(parentOf, "p"), 100)
}
