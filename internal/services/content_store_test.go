package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/StoryEngine/internal/errors"
	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/schema"
	"github.com/Corphon/StoryEngine/internal/storage"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const sampleStory = `{
  "theme": "light-editorial",
  "title": "Tides of the Blue",
  "publishedAt": "2026-02-01",
  "citations": [],
  "extra": "dropped",
  "pages": [
    {
      "id": "intro",
      "title": "Intro",
      "layout": "split",
      "body": ["One.", "Two.", "Three."],
      "background": {"type": "image", "src": "/images/sea.jpg"},
      "actions": []
    }
  ]
}`

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(event models.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []models.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ChangeEvent(nil), p.events...)
}

func newTestStore(t *testing.T) (*ContentStore, *storage.FileStorage, *recordingPublisher) {
	t.Helper()
	fileStorage, err := storage.NewFileStorage(t.TempDir(), nil)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	store := NewContentStore(fileStorage, ContentStoreConfig{
		MaxUploadBytes: 1024,
		Metrics:        utils.NewMetrics(),
		Publisher:      publisher,
	})
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store, fileStorage, publisher
}

func dataURL(mime string, payload []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

func TestStoryRoundTrip(t *testing.T) {
	store, fileStorage, publisher := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteStory(ctx, "tides", []byte(sampleStory))
	require.NoError(t, err)

	raw, err := store.ReadStory(ctx, "tides")
	require.NoError(t, err)

	// what comes back validates again and keeps the authored content
	doc, err := schema.ParseStory(raw)
	require.NoError(t, err)
	assert.Equal(t, "Tides of the Blue", doc.Title)
	assert.Equal(t, []string{"One.", "Two.", "Three."}, doc.Pages[0].Body)

	onDisk, err := os.ReadFile(fileStorage.Path("stories", "tides.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(onDisk), "extra")
	assert.NotContains(t, string(onDisk), "citations")
	assert.NotContains(t, string(onDisk), "actions")
	assert.True(t, strings.HasPrefix(string(onDisk), "{\n  \"theme\""))

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventStorySaved, events[0].Type)
	assert.Equal(t, "tides", events[0].ID)
	assert.Equal(t, int64(1700000000000), events[0].Timestamp)

	assert.Equal(t, 1.0, testutil.ToFloat64(store.metrics.Operations.WithLabelValues("write_story", "ok")))
}

func TestWriteStory_Rejections(t *testing.T) {
	store, fileStorage, publisher := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteStory(ctx, "bad", []byte(`{"theme":"dark-cinematic","pages":[]}`))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, "Story config failed validation.", appErr.Message)
	require.NotEmpty(t, appErr.Fields)
	assert.Equal(t, "title", appErr.Fields[0].Path)

	_, err = store.WriteStory(ctx, "bad", []byte(`{"theme":`))
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Invalid JSON body.", appErr.Message)

	assert.False(t, fileStorage.FileExists("stories", "bad.json"))
	assert.Empty(t, publisher.Events())
}

func TestStoryIDEnforcement(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "../secret", "a/b", "a b", "..", "tides.json", "café"} {
		_, err := store.ReadStory(ctx, id)
		assert.True(t, apperrors.IsValidationError(err), "read %q", id)

		_, err = store.WriteStory(ctx, id, []byte(sampleStory))
		assert.True(t, apperrors.IsValidationError(err), "write %q", id)

		err = store.DeleteStory(ctx, id)
		assert.True(t, apperrors.IsValidationError(err), "delete %q", id)
	}

	entries, err := os.ReadDir(fileStorage.BaseDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no path was created for rejected ids")
}

func TestReadAndDeleteStory_NotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.ReadStory(ctx, "missing")
	assert.True(t, apperrors.IsNotFoundError(err))

	err = store.DeleteStory(ctx, "missing")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestReadStory_CorruptFile(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	require.NoError(t, fileStorage.SaveTextFile("stories", "broken.json", []byte("{not json")))

	_, err := store.ReadStory(context.Background(), "broken")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrorTypeError, appErr.Type)
	assert.Equal(t, "Failed to read story.", appErr.Message)
}

func TestDeleteStory_HardDelete(t *testing.T) {
	store, fileStorage, publisher := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteStory(ctx, "gone", []byte(sampleStory))
	require.NoError(t, err)
	require.NoError(t, store.DeleteStory(ctx, "gone"))

	assert.False(t, fileStorage.FileExists("stories", "gone.json"))
	assert.False(t, fileStorage.DirExists(".trash"))

	events := publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventStoryDeleted, events[1].Type)
}

func TestListStories(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	ctx := context.Background()

	entries, err := store.ListStories(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.WriteStory(ctx, "alpha", []byte(sampleStory))
	require.NoError(t, err)
	require.NoError(t, fileStorage.SaveTextFile("stories", "notes.txt", []byte("x")))

	entries, err = store.ListStories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.StoryIndexEntry{{ID: "alpha", ConfigPath: "/stories/alpha.json"}}, entries)
}

func TestContentReadWrite(t *testing.T) {
	store, _, publisher := newTestStore(t)
	ctx := context.Background()

	home := `{"navTitle":"Atlas","hero":{"kicker":"k","title":"t","body":"b","tags":[],"image":"/images/h.jpg","imageAlt":"a","note":"n"}}`

	_, err := store.ReadContent(ctx, "home.json")
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = store.WriteContent(ctx, "home.json", []byte(home))
	require.NoError(t, err)

	raw, err := store.ReadContent(ctx, "home.json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Atlas", decoded["navTitle"])

	for _, file := range []string{"index.json", "../home.json", "stories/a.json", ""} {
		_, err = store.ReadContent(ctx, file)
		assert.True(t, apperrors.IsValidationError(err), file)
		_, err = store.WriteContent(ctx, file, []byte(home))
		assert.True(t, apperrors.IsValidationError(err), file)
	}

	_, err = store.WriteContent(ctx, "about.json", []byte(`{"title":"About"}`))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Content file failed validation.", appErr.Message)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventContentSaved, events[0].Type)
	assert.Equal(t, "home.json", events[0].File)
}

func TestListMedia(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	ctx := context.Background()

	files, err := store.ListMedia(ctx, "video")
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)

	_, err = store.ListMedia(ctx, "document")
	assert.True(t, apperrors.IsValidationError(err))

	require.NoError(t, fileStorage.CreateExclusive("images", "a.png", []byte("1234")))
	require.NoError(t, fileStorage.CreateExclusive("images", ".DS_Store", []byte("x")))
	require.NoError(t, os.MkdirAll(fileStorage.Path("images", "sub"), 0755))

	files, err = store.ListMedia(ctx, "image")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.png", files[0].Name)
	assert.Equal(t, "/images/a.png", files[0].Path)
	assert.Equal(t, int64(4), files[0].Size)
	assert.Greater(t, files[0].UpdatedAt, int64(0))
}

func TestUploadMedia(t *testing.T) {
	store, fileStorage, publisher := newTestStore(t)
	ctx := context.Background()
	payload := []byte("\x89PNG fake image")

	path, err := store.UploadMedia(ctx, "image", models.MediaUpload{
		Name: "../../etc/cover.png",
		Data: dataURL("image/png", payload),
	})
	require.NoError(t, err)
	assert.Equal(t, "/images/cover.png", path)

	written, err := os.ReadFile(fileStorage.Path("images", "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	// a second upload with the same name never overwrites
	_, err = store.UploadMedia(ctx, "image", models.MediaUpload{Name: "cover.png", Data: dataURL("image/png", []byte("other"))})
	assert.True(t, apperrors.IsConflictError(err))
	written, err = os.ReadFile(fileStorage.Path("images", "cover.png"))
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMediaUploaded, events[0].Type)
	assert.Equal(t, "/images/cover.png", events[0].Path)
	assert.Equal(t, float64(len(payload)), testutil.ToFloat64(store.metrics.UploadedBytes))
}

func TestUploadMedia_Rejections(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		mediaType string
		upload    models.MediaUpload
		message   string
		tooLarge  bool
	}{
		{"bad type", "pdf", models.MediaUpload{Name: "a.pdf", Data: "data:,AAAA"}, "Invalid media type.", false},
		{"missing name", "image", models.MediaUpload{Data: dataURL("image/png", []byte("x"))}, "Missing file name or data.", false},
		{"missing data", "image", models.MediaUpload{Name: "a.png"}, "Missing file name or data.", false},
		{"dot name", "image", models.MediaUpload{Name: "images/..", Data: dataURL("image/png", []byte("x"))}, "Invalid file name.", false},
		{"hidden name", "image", models.MediaUpload{Name: ".htaccess", Data: dataURL("image/png", []byte("x"))}, "Invalid file name.", false},
		{"wrong extension", "audio", models.MediaUpload{Name: "song.flac", Data: dataURL("audio/flac", []byte("x"))}, "Unsupported file type.", false},
		{"image ext for video", "video", models.MediaUpload{Name: "clip.png", Data: dataURL("image/png", []byte("x"))}, "Unsupported file type.", false},
		{"no comma", "image", models.MediaUpload{Name: "a.png", Data: "AAAA"}, "Invalid file data.", false},
		{"empty payload", "image", models.MediaUpload{Name: "a.png", Data: "data:image/png;base64,"}, "Invalid file data.", false},
		{"not base64", "image", models.MediaUpload{Name: "a.png", Data: "data:image/png;base64,!!!!"}, "Invalid file data.", false},
		{"too large", "image", models.MediaUpload{Name: "big.png", Data: dataURL("image/png", make([]byte, 1025))}, "File is too large.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.UploadMedia(ctx, tt.mediaType, tt.upload)
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, tt.tooLarge, appErr.Type == apperrors.ErrorTypeTooLarge)
		})
	}

	assert.False(t, fileStorage.DirExists("images"))
}

func TestUploadMedia_ExactLimit(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.UploadMedia(context.Background(), "audio", models.MediaUpload{
		Name: "Theme.MP3",
		Data: dataURL("audio/mpeg", make([]byte, 1024)),
	})
	assert.NoError(t, err)
}

func TestDeleteMedia_MovesToTrash(t *testing.T) {
	store, fileStorage, publisher := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, fileStorage.CreateExclusive("videos", "clip.mp4", []byte("mp4")))

	require.NoError(t, store.DeleteMedia(ctx, "video", "clip.mp4"))

	assert.False(t, fileStorage.FileExists("videos", "clip.mp4"))
	trashed, err := os.ReadFile(filepath.Join(fileStorage.BaseDir, ".trash", "videos", "1700000000000-clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "mp4", string(trashed))

	err = store.DeleteMedia(ctx, "video", "clip.mp4")
	assert.True(t, apperrors.IsNotFoundError(err))

	err = store.DeleteMedia(ctx, "video", "../")
	assert.True(t, apperrors.IsValidationError(err))

	err = store.DeleteMedia(ctx, "doc", "clip.mp4")
	assert.True(t, apperrors.IsValidationError(err))

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMediaTrashed, events[0].Type)
	assert.Equal(t, "/videos/clip.mp4", events[0].Path)
}

func TestDeleteMedia_TrashedFileIsNotListed(t *testing.T) {
	store, fileStorage, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, fileStorage.CreateExclusive("audio", "a.mp3", []byte("x")))
	require.NoError(t, store.DeleteMedia(ctx, "audio", "a.mp3"))

	files, err := store.ListMedia(ctx, "audio")
	require.NoError(t, err)
	assert.Empty(t, files)
}
