package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/storage"
	"github.com/Corphon/StoryEngine/internal/utils"
)

func newTestDiscovery(t *testing.T) (*Discovery, *storage.FileStorage, *recordingPublisher) {
	t.Helper()
	fileStorage, err := storage.NewFileStorage(t.TempDir(), nil)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	discovery := NewDiscovery(fileStorage, DiscoveryConfig{
		Debounce:  20 * time.Millisecond,
		Metrics:   utils.NewMetrics(),
		Publisher: publisher,
	})
	return discovery, fileStorage, publisher
}

func TestGenerateIndex(t *testing.T) {
	discovery, fileStorage, _ := newTestDiscovery(t)
	require.NoError(t, fileStorage.SaveTextFile("stories", "b.json", []byte(`{}`)))
	require.NoError(t, fileStorage.SaveTextFile("stories", "a.json", []byte(`{}`)))
	require.NoError(t, fileStorage.SaveTextFile("stories", "readme.md", []byte(`x`)))

	index, err := discovery.GenerateIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", index.Version)
	require.Len(t, index.Stories, 2)

	var onDisk models.ContentIndex
	require.NoError(t, fileStorage.LoadJSONFile("", IndexFile, &onDisk))
	assert.ElementsMatch(t, []models.StoryIndexEntry{
		{ID: "a", ConfigPath: "/stories/a.json"},
		{ID: "b", ConfigPath: "/stories/b.json"},
	}, onDisk.Stories)
	assert.Equal(t, 1.0, testutil.ToFloat64(discovery.metrics.IndexRebuilds))
}

func TestGenerateIndex_NoStoriesDir(t *testing.T) {
	discovery, fileStorage, _ := newTestDiscovery(t)

	_, err := discovery.GenerateIndex(context.Background())
	assert.ErrorIs(t, err, ErrNoStoriesDir)
	assert.False(t, fileStorage.FileExists("", IndexFile))
}

func TestWatch_RegeneratesIndexOnNewStory(t *testing.T) {
	discovery, fileStorage, publisher := newTestDiscovery(t)
	require.NoError(t, os.MkdirAll(fileStorage.Path("stories", ""), 0755))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- discovery.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, fileStorage.SaveTextFile("stories", "fresh.json", []byte(`{}`)))

	assert.Eventually(t, func() bool {
		var index models.ContentIndex
		if err := fileStorage.LoadJSONFile("", IndexFile, &index); err != nil {
			return false
		}
		return len(index.Stories) == 1 && index.Stories[0].ID == "fresh"
	}, 3*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, event := range publisher.Events() {
			if event.Type == models.EventIndexUpdated {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch_NoStoriesDir(t *testing.T) {
	discovery, _, _ := newTestDiscovery(t)
	assert.ErrorIs(t, discovery.Watch(context.Background()), ErrNoStoriesDir)
}

func TestAffectsIndex(t *testing.T) {
	assert.True(t, affectsIndex(fsnotify.Event{Name: "/c/stories/a.json", Op: fsnotify.Create}))
	assert.True(t, affectsIndex(fsnotify.Event{Name: "/c/stories/a.json", Op: fsnotify.Remove}))
	assert.True(t, affectsIndex(fsnotify.Event{Name: "/c/stories/a.json", Op: fsnotify.Rename}))
	assert.False(t, affectsIndex(fsnotify.Event{Name: "/c/stories/a.json", Op: fsnotify.Write}))
	assert.False(t, affectsIndex(fsnotify.Event{Name: "/c/stories/a.json", Op: fsnotify.Chmod}))
	assert.False(t, affectsIndex(fsnotify.Event{Name: "/c/stories/.a.json.123.tmp", Op: fsnotify.Create}))
	assert.False(t, affectsIndex(fsnotify.Event{Name: "/c/stories/notes.txt", Op: fsnotify.Create}))
}
