package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates tests from each other; viper state is global.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "main:\n  name: test-site\n"))
	require.NoError(t, err)

	assert.Equal(t, "test-site", settings.Main.Name)
	assert.Equal(t, DatabaseSQLite, settings.Database.Type)
	assert.Equal(t, 100*time.Millisecond, settings.Detection.TargetInterval)
	assert.Equal(t, 10*time.Second, settings.Detection.RetryBackoff)
	assert.InDelta(t, 0.75, settings.Detection.FallbackConfidence, 1e-9)
	assert.InDelta(t, 350.0, settings.Detection.ProximityThreshold, 1e-9)
	assert.Equal(t, []string{"pallet_bad", "Pallets_bad"}, settings.Detection.DefectClasses)
	assert.Equal(t, "person", settings.Detection.ProximityClasses.Subject)
	assert.Equal(t, "forklift", settings.Detection.ProximityClasses.Hazard)
	assert.Equal(t, 60*time.Second, settings.Debounce.Window)
	assert.Equal(t, settings.Debounce.Window, settings.Debounce.CacheTTL, "cache ttl follows window")
	assert.Equal(t, 640, settings.FrameSource.Width)
	assert.Equal(t, 480, settings.FrameSource.Height)
	assert.InDelta(t, 0.25, settings.Inference.CandidateFloor, 1e-9)
	assert.Equal(t, StopBackendMemory, settings.StopSignal.Backend)
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsYAMLOverrides(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, `
detection:
  target_interval: 250ms
  proximity_threshold: 50
  fallback_video:
    ppe: /videos/ppe.mp4
debounce:
  window: 10m
  cache_ttl: 1h
  max_entries: 500
`))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, settings.Detection.TargetInterval)
	assert.InDelta(t, 50.0, settings.Detection.ProximityThreshold, 1e-9)
	assert.Equal(t, "/videos/ppe.mp4", settings.Detection.FallbackVideo["ppe"])
	assert.Equal(t, 10*time.Minute, settings.Debounce.Window)
	assert.Equal(t, time.Hour, settings.Debounce.CacheTTL)
	assert.Equal(t, 500, settings.Debounce.MaxEntries)
}

func TestLoadEnvOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("YARDWATCH_DEBOUNCE_WINDOW", "90s")
	t.Setenv("YARDWATCH_STOP_BACKEND", "nats")

	settings, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, settings.Debounce.Window)
	assert.Equal(t, StopBackendNATS, settings.StopSignal.Backend)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("YARDWATCH_DB_TYPE", "oracle")

	_, err := Load(writeConfig(t, "{}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YARDWATCH_DB_TYPE")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("YARDWATCH_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("YARDWATCH_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("YARDWATCH_TEST_DOTENV"))
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	settings.API.Listen = ":9999"

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(out, settings))

	viper.Reset()
	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, ":9999", reloaded.API.Listen)
	assert.Equal(t, settings.Detection.RetryBackoff, reloaded.Detection.RetryBackoff)
}
