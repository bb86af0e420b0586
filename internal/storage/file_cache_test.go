package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentCache_HitAndExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0644))

	cache := NewDocumentCache(4, time.Minute)

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = cache.Read(path)
	require.NoError(t, err)
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	// an edit outside the storage layer changes size and mtime
	require.NoError(t, os.WriteFile(path, []byte(`{"a":12}`), 0644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	data, err = cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":12}`, string(data))
}

func TestDocumentCache_Eviction(t *testing.T) {
	dir := t.TempDir()
	cache := NewDocumentCache(5, time.Minute)

	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		_, err := cache.Read(path)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, cache.Len(), 5)
	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestDocumentCache_MissingFileDropsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	cache := NewDocumentCache(4, time.Minute)
	_, err := cache.Read(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = cache.Read(path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, cache.Len())
}
