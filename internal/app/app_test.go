// internal/app/app_test.go
package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryEngine/internal/config"
	"github.com/Corphon/StoryEngine/internal/di"
)

const homeJSON = `{"hero":{"title":"Atlas","image":"/images/hero.jpg"}}`

// 测试前的设置工作
func setupTest(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "stories"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home.json"), []byte(homeJSON), 0o644))

	cfg := config.Defaults()
	cfg.ContentDir = dir
	cfg.Port = 18080
	cfg.BindAddress = "127.0.0.1"
	cfg.WatchContent = false
	return cfg
}

func TestNewRegistersServices(t *testing.T) {
	a, err := New(setupTest(t), nil)
	require.NoError(t, err)

	for _, name := range []string{di.ContentStore, di.Discovery, di.HomeCache, di.SiteCatalog, di.EventHub, di.Metrics, di.Logger} {
		assert.True(t, a.Container.Has(name), name)
	}

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHomeCacheResetOnContentWrite(t *testing.T) {
	a, err := New(setupTest(t), nil)
	require.NoError(t, err)
	ctx := context.Background()

	home, err := a.Home.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Atlas", home.NavTitle)

	_, err = a.Store.WriteContent(ctx, "home.json", []byte(`{
		"navTitle": "Renamed",
		"hero": {"kicker": "k", "title": "Atlas", "body": "b", "tags": ["t"],
			"image": "/images/hero.jpg", "imageAlt": "alt", "note": "n"}
	}`))
	require.NoError(t, err)

	home, err = a.Home.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", home.NavTitle)
}

func TestServeGeneratesIndexAndStops(t *testing.T) {
	cfg := setupTest(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ContentDir, "stories", "a.json"), []byte(`{}`), 0o644))

	a, err := New(cfg, nil)
	require.NoError(t, err)

	srv := &http.Server{Addr: "127.0.0.1:0", Handler: a.Handler()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, srv, srv.ListenAndServe) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.ContentDir, "index.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	raw, err := os.ReadFile(filepath.Join(cfg.ContentDir, "index.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"configPath": "/stories/a.json"`)
}

func TestServeReportsListenError(t *testing.T) {
	a, err := New(setupTest(t), nil)
	require.NoError(t, err)

	srv := &http.Server{Addr: "127.0.0.1:0", Handler: a.Handler()}
	err = a.serve(context.Background(), srv, func() error { return errors.New("address in use") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}
