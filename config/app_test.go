package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
extraction:
  language: kannada
`), 0o644))
	t.Setenv("APP_CONFIG", path)

	cfg := GetAppConfig()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "kannada", cfg.Extraction.Language)
	// Values absent from the file keep their defaults.
	assert.Equal(t, 600, cfg.Extraction.DPI)
	assert.Equal(t, "file", cfg.Jobs.Store)
	assert.Equal(t, "tesseract", cfg.Extraction.Backend)
}

func TestDefaults(t *testing.T) {
	cfg := defaults()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "pool", cfg.Jobs.Mode)
	assert.Equal(t, 2, cfg.Jobs.PoolSize)
	assert.Equal(t, 64, cfg.Jobs.QueueDepth)
	assert.Equal(t, "eng", cfg.Extraction.Language)
	assert.Equal(t, 2, cfg.Extraction.QualityRetries)
	assert.False(t, cfg.Ollama.Enabled)
}
