package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "app.yaml", `
network:
  enableServer: true
  serverPort: 9000
profiling:
  enabled: true
  sample_rate: 10
`)

	cfg := DefaultAppConfig()
	require.NoError(t, Load(path, cfg))
	assert.True(t, cfg.Network.EnableServer)
	assert.Equal(t, 9000, cfg.Network.ServerPort)
	assert.True(t, cfg.Profiling.Enabled)
	assert.Equal(t, uint64(10), cfg.Profiling.SampleRate)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "app.json", `{"network": {"serverPort": 7070}}`)

	cfg := DefaultAppConfig()
	require.NoError(t, Load(path, cfg))
	assert.Equal(t, 7070, cfg.Network.ServerPort)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "app.yaml", `
network:
  serverPort: 9000
`)

	t.Setenv("GIRDER_NETWORK_SERVERPORT", "9100")
	t.Setenv("GIRDER_NETWORK_RECONNECTINTERVAL", "2s")
	t.Setenv("GIRDER_PROFILING_ENABLED", "true")
	t.Setenv("GIRDER_PROFILING_ENABLEDCATEGORIES", "network, frame")

	cfg := DefaultAppConfig()
	require.NoError(t, LoadWithEnv(path, EnvPrefix, cfg))
	assert.Equal(t, 9100, cfg.Network.ServerPort)
	assert.Equal(t, 2*time.Second, cfg.Network.ReconnectInterval)
	assert.True(t, cfg.Profiling.Enabled)
	assert.Equal(t, []string{"network", "frame"}, cfg.Profiling.EnabledCategories)
}

func TestApplyEnvOverridesRejectsNonPointer(t *testing.T) {
	err := ApplyEnvOverrides(EnvPrefix, struct{}{})
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := DefaultAppConfig()
	require.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
}

func TestRequiredFields(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Network.ClientAddress = ""

	err := Validate(cfg, RequiredFields("Network.ClientAddress"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Network.ClientAddress")

	cfg.Network.ClientAddress = "127.0.0.1"
	require.NoError(t, Validate(cfg, RequiredFields("Network.ClientAddress")))
}

func TestRangeValidator(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Network.ServerPort = 70000
	require.Error(t, Validate(cfg, RangeValidator("Network.ServerPort", 0, 65535)))

	cfg.Network.ServerPort = 8080
	require.NoError(t, Validate(cfg, RangeValidator("Network.ServerPort", 0, 65535)))
}

func TestOneOfValidator(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Bus.Backend = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg.Bus.Backend = "nats"
	require.NoError(t, cfg.Validate())
}

func TestLoadAppValidates(t *testing.T) {
	path := writeFile(t, "app.yaml", `
network:
  serverPort: -1
`)
	_, err := LoadApp(path)
	require.Error(t, err)
}

func TestSaveAndReloadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	cfg := DefaultAppConfig()
	cfg.Profiling.ExportFormat = "csv"
	require.NoError(t, SaveJSON(path, cfg))

	reloaded := DefaultAppConfig()
	require.NoError(t, Load(path, reloaded))
	assert.Equal(t, "csv", reloaded.Profiling.ExportFormat)
}

func TestSaveAndReloadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := DefaultAppConfig()
	cfg.Network.ServerPort = 12345
	require.NoError(t, SaveYAML(path, cfg))

	reloaded := DefaultAppConfig()
	require.NoError(t, Load(path, reloaded))
	assert.Equal(t, 12345, reloaded.Network.ServerPort)
}
