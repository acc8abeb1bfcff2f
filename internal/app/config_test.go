package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicum-hub/practicum/internal/registration"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BACKEND_BASE_URL", "http://backend.local/api")
	t.Setenv("CSRF_SECRET", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, DraftDriverRedis, cfg.DraftDriver)
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 30*time.Minute, cfg.WorkspaceIdle)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, registration.CityLookupConfig, cfg.CityLookup())
	assert.Equal(t, registration.ActivityLookupConfig, cfg.ActivityLookup())
	assert.Equal(t, registration.ProgramLookupConfig, cfg.ProgramLookup())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DRAFT_DRIVER", " File ")
	t.Setenv("DRAFT_DIR", t.TempDir())
	t.Setenv("LOOKUP_CITY_DELAY", "50ms")
	t.Setenv("LOOKUP_ACTIVITY_MIN_LENGTH", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DraftDriverFile, cfg.DraftDriver)
	assert.Equal(t, 50*time.Millisecond, cfg.CityLookup().Delay)
	assert.Equal(t, 2, cfg.CityLookup().MinLength)
	assert.Equal(t, 4, cfg.ActivityLookup().MinLength)
	assert.Equal(t, "activity_code", cfg.ActivityLookup().Name)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Run("missing backend", func(t *testing.T) {
		t.Setenv("BACKEND_BASE_URL", "")
		t.Setenv("CSRF_SECRET", "secret")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DRAFT_DRIVER", "sqlite")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})
	t.Run("file driver without dir", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DRAFT_DRIVER", "file")
		t.Setenv("DRAFT_DIR", " ")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("bad rate limit", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("RATE_LIMIT_REQUESTS", "0")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
