package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points Load at files that do not exist and clears the keys the
// tests care about.
func isolate(t *testing.T) LoadOptions {
	t.Helper()
	for _, key := range []string{
		ConfigFileEnv, "PORT", "BIND_ADDRESS", "CONTENT_DIR", "BASE_PATH", "APP_ENV",
		"STRICT_ORIGIN", "CORS_ALLOWED_ORIGINS", "MAX_UPLOAD_BYTES", "EDITOR_ENABLED",
		"MUTATION_RATE_LIMIT", "MUTATION_RATE_BURST", "WATCH_CONTENT", "LOG_LEVEL",
	} {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, value) })
			os.Unsetenv(key)
		}
	}
	return LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.BindAddress)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "/", cfg.BasePath)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxUploadBytes)
	assert.True(t, cfg.EditorEnabled)
	assert.True(t, cfg.WatchContent)
	assert.False(t, cfg.StrictOrigin)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Layering(t *testing.T) {
	opts := isolate(t)
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
port = 9000
base_path = "/story_app/"
strict_origin = true
cors_allowed_origins = ["http://localhost:5173"]
`), 0644))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("APP_ENV=production\nPORT=9100\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("APP_ENV")
		os.Unsetenv("PORT")
	})

	t.Setenv("EDITOR_ENABLED", "false")

	opts.ConfigFile = tomlPath
	opts.EnvFile = envPath
	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "environment beats the TOML file")
	assert.Equal(t, "/story_app/", cfg.BasePath, "TOML beats defaults")
	assert.True(t, cfg.StrictOrigin)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.EditorEnabled)
	assert.Equal(t, "127.0.0.1", cfg.BindAddress, "unset keys keep their default")
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	opts := isolate(t)
	tomlPath := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("max_upload_bytes = 1024\n"), 0644))
	t.Setenv(ConfigFileEnv, tomlPath)

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
}

func TestLoad_Errors(t *testing.T) {
	opts := isolate(t)

	opts.ConfigFile = filepath.Join(t.TempDir(), "nope.toml")
	_, err := Load(opts)
	assert.Error(t, err)

	opts = isolate(t)
	t.Setenv("PORT", "not-a-number")
	_, err = Load(opts)
	assert.Error(t, err)

	opts = isolate(t)
	t.Setenv("PORT", "70000")
	_, err = Load(opts)
	assert.Error(t, err)
}

func TestResolveContentDir(t *testing.T) {
	root := t.TempDir()
	content := filepath.Join(root, "content")

	assert.Equal(t, content, ResolveContentDir(content), "nothing exists")

	require.NoError(t, os.Mkdir(content+"-default", 0755))
	assert.Equal(t, content+"-default", ResolveContentDir(content))

	require.NoError(t, os.Mkdir(content, 0755))
	assert.Equal(t, content, ResolveContentDir(content))
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.MutationRateLimit = 5
	cfg.MutationRateBurst = 0
	assert.Error(t, cfg.Validate())

	cfg.MutationRateBurst = 1
	assert.NoError(t, cfg.Validate())
}
