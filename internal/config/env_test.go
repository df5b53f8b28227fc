package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("SITECREW_API_KEY", "secret")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "local", env.Env)
	assert.Equal(t, "3100", env.HTTPPort)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, "storage", env.Backend)
	assert.Equal(t, 2*time.Minute, env.LocationFreshness)
	assert.Equal(t, 5*time.Second, env.LockTimeout)
	assert.Equal(t, "assignment-events", env.Topic)
	assert.Empty(t, env.Brokers)
	assert.False(t, env.VAPIDEnv.Configured())
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("SITECREW_API_KEY", "secret")
	t.Setenv("SITECREW_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SITECREW_LOCATION_FRESHNESS", "90s")
	t.Setenv("SITECREW_TIMEZONE", "Asia/Tokyo")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, env.Brokers)
	assert.Equal(t, 90*time.Second, env.LocationFreshness)

	loc, err := env.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoadEnv_Invalid(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("SITECREW_API_KEY", "")
		require.NoError(t, os.Unsetenv("SITECREW_API_KEY"))
		_, err := LoadEnv()
		assert.Error(t, err)
	})
	t.Run("unknown timezone", func(t *testing.T) {
		t.Setenv("SITECREW_API_KEY", "secret")
		t.Setenv("SITECREW_TIMEZONE", "Mars/Olympus")
		_, err := LoadEnv()
		assert.Error(t, err)
	})
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&BaseEnv{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (&BaseEnv{LogLevel: "loud"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (*BaseEnv)(nil).SlogLevel())
}
