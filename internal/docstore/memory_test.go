package docstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "c", "k", Doc{"a": "1", "b": "2"}))
	doc, err := m.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, Doc{"a": "1", "b": "2"}, doc)

	// Set replaces the whole document, stale fields do not survive.
	require.NoError(t, m.Set(ctx, "c", "k", Doc{"a": "9"}))
	doc, err = m.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, Doc{"a": "9"}, doc)

	require.NoError(t, m.Delete(ctx, "c", "k"))
	_, err = m.Get(ctx, "c", "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	require.NoError(t, m.Delete(ctx, "c", "k"))
}

func TestMemorySetFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "c", "k", Doc{"a": "1", "b": "2"}))
	require.NoError(t, m.SetFields(ctx, "c", "k", Doc{"b": "3", "c": "4"}))

	doc, err := m.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, Doc{"a": "1", "b": "3", "c": "4"}, doc)

	// SetFields on a missing document creates it.
	require.NoError(t, m.SetFields(ctx, "c", "new", Doc{"x": "1"}))
	doc, err = m.Get(ctx, "c", "new")
	require.NoError(t, err)
	assert.Equal(t, Doc{"x": "1"}, doc)
}

func TestMemoryMulti(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetMulti(ctx, "c", map[string]Doc{
		"k1": {"v": "1"},
		"k2": {"v": "2"},
	}))
	for _, k := range []string{"k1", "k2"} {
		_, err := m.Get(ctx, "c", k)
		assert.NoError(t, err)
	}

	require.NoError(t, m.DeleteMulti(ctx, "c", []string{"k1", "k2"}))
	_, err := m.Get(ctx, "c", "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCollectionsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "c1", "k", Doc{"v": "1"}))
	_, err := m.Get(ctx, "c2", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIncrFieldAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = m.IncrField(ctx, "c", "k", "count", 1)
		}()
	}
	wg.Wait()

	doc, err := m.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, "50", doc["count"])

	v, err := m.IncrField(ctx, "c", "k", "count", -10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), v)
}
