package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/executor"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Engine.CanvasTimeout)
	assert.Equal(t, 12*time.Second, cfg.Engine.ThreeTimeout)
	assert.Equal(t, 0.7, cfg.Engine.ConfidenceFloor)
	assert.Len(t, cfg.Loader.Sources, 3)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fragments.yaml")
	yml := `logLevel: debug
server:
  port: 9000
engine:
  sandboxLevel: strict
  canvasTimeout: 2s
loader:
  sources:
    - https://mirror.example/three.min.js
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("THUMBNAIL_DIR", "/tmp/thumbs")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "/tmp/thumbs", cfg.Storage.ThumbnailDir)
	assert.Equal(t, 2*time.Second, cfg.Engine.CanvasTimeout)
	assert.Equal(t, 12*time.Second, cfg.Engine.ThreeTimeout, "unset keys keep their defaults")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, executor.SandboxStrict, cfg.Options().SandboxLevel)
	assert.Equal(t, []string{"https://mirror.example/three.min.js"}, cfg.ToLoader().Sources)
	assert.Equal(t, "THREE", cfg.ToLoader().Global)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yml   string
		env   map[string]string
		field string
	}{
		{name: "unknown sandbox level", env: map[string]string{"SANDBOX_LEVEL": "lenient"}, field: "Config.Engine.SandboxLevel"},
		{name: "port out of range", yml: "server:\n  port: 70000\n", field: "Config.Server.Port"},
		{name: "bad port env", env: map[string]string{"PORT": "http"}, field: "PORT"},
		{name: "floor above one", yml: "engine:\n  confidenceFloor: 1.5\n", field: "Config.Engine.ConfidenceFloor"},
		{name: "no mirrors", yml: "loader:\n  sources: []\n", field: "Config.Loader.Sources"},
		{name: "mirror is not a url", yml: "loader:\n  sources: [nowhere]\n", field: "Config.Loader.Sources[0]"},
		{name: "unknown log level", env: map[string]string{"LOG_LEVEL": "verbose"}, field: "Config.LogLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yml != "" {
				path = filepath.Join(t.TempDir(), "fragments.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0o600))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
