package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := DefaultConfig()
	want.FeedURL = "https://feed.example/calendar.json"
	want.Timezone = "America/New_York"
	want.Impacts = []string{"High", "Medium"}
	want.Currencies = []string{"USD", "EUR"}
	want.UseUTC = true
	want.RefreshCron = "0 * * * *"

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No temp files left behind by the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed_url: https://feed.example/cal.json\nretries: 0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://feed.example/cal.json", cfg.FeedURL)
	assert.Equal(t, DefaultConfig().Retries, cfg.Retries, "retries below 1 fall back to the default")
	assert.Equal(t, DefaultConfig().CachePath, cfg.CachePath)
	assert.Equal(t, []string{"High"}, cfg.Impacts)
	assert.Equal(t, "*/30 * * * *", cfg.RefreshCron)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed_url: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	t.Setenv("FXCAL_FEED_URL", "https://override.example/cal.json")
	t.Setenv("FXCAL_TIMEZONE", "Europe/London")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "https://override.example/cal.json", cfg.FeedURL)
	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.Equal(t, DefaultConfig().CachePath, cfg.CachePath, "unset variables leave the file value alone")
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{TimeoutSeconds: 15, BackoffSeconds: 2.5}

	assert.Equal(t, 15*time.Second, cfg.Timeout())
	assert.Equal(t, 2500*time.Millisecond, cfg.Backoff())
}

func TestLocation(t *testing.T) {
	t.Run("empty means system-local", func(t *testing.T) {
		loc, err := (&Config{}).Location()
		require.NoError(t, err)
		assert.Equal(t, time.Local, loc)
	})

	t.Run("valid IANA name", func(t *testing.T) {
		loc, err := (&Config{Timezone: "Asia/Tokyo"}).Location()
		require.NoError(t, err)
		assert.Equal(t, "Asia/Tokyo", loc.String())
	})

	t.Run("bogus name errors", func(t *testing.T) {
		_, err := (&Config{Timezone: "Mars/Olympus_Mons"}).Location()
		assert.Error(t, err)
	})
}
