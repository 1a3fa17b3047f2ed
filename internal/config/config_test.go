package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "python", cfg.Retrieval.Program)
	assert.Equal(t, "./CorvilApiStreamingClient.py", cfg.Retrieval.Script)
	assert.Equal(t, "./csv-comma2soh", cfg.Retrieval.FilterPath)
	assert.Equal(t, "prod", cfg.Retrieval.Environment)
	assert.Equal(t, 6*time.Hour, cfg.Retrieval.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Retrieval.CanaryTimeout)
	assert.Equal(t, int64(5000), cfg.Extract.MinArtifactBytes)
	assert.Equal(t, "run", cfg.Extract.ManifestScope)
	assert.True(t, cfg.Extract.Lock)
	assert.Equal(t, "CPM-US@theice.com", cfg.Alert.To)
	assert.Equal(t, "CORVIL EXTRACT ERROR", cfg.Alert.Subject)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "none", cfg.Delivery.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
retrieval:
  environment: uat
  timeout: 30m
extract:
  output_dir: /data/extracts
  manifest_scope: prefix
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "uat", cfg.Retrieval.Environment)
	assert.Equal(t, 30*time.Minute, cfg.Retrieval.Timeout)
	assert.Equal(t, "/data/extracts", cfg.Extract.OutputDir)
	assert.Equal(t, "prefix", cfg.Extract.ManifestScope)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, int64(5000), cfg.Extract.MinArtifactBytes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
retrieval:
  environment: uat
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CORVIL_RETRIEVAL_ENVIRONMENT", "prod")
	t.Setenv("CORVIL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Retrieval.Environment)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("retrieval: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Retrieval.Program = "python"
	cfg.Retrieval.Environment = "prod"
	cfg.Retrieval.Timeout = time.Hour
	cfg.Retrieval.CanaryTimeout = time.Minute
	cfg.Extract.MinArtifactBytes = 5000
	cfg.Extract.ManifestScope = "run"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "corvil_extract.db"
	cfg.Delivery.Driver = "none"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateExtract_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("extract"))
}

func TestValidateExtract_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Retrieval.Program = ""
	cfg.Retrieval.Timeout = 0
	cfg.Extract.ManifestScope = "everything"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.program is required")
	assert.Contains(t, err.Error(), "retrieval timeouts must be > 0")
	assert.Contains(t, err.Error(), "manifest_scope")
}

func TestValidateExtract_Delivery(t *testing.T) {
	cfg := validDefaults()
	cfg.Delivery.Driver = "ftp"
	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.ftp.addr is required")

	cfg.Delivery.FTP.Addr = "drop.example.com:21"
	assert.NoError(t, cfg.Validate("extract"))

	cfg.Delivery.Driver = "s3"
	err = cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.s3.endpoint")

	cfg.Delivery.Driver = "carrier-pigeon"
	err = cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown delivery.driver")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store.driver")

	cfg.Store.Driver = "none"
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidateListIgnoresRetrieval(t *testing.T) {
	cfg := validDefaults()
	cfg.Retrieval.Program = ""
	assert.NoError(t, cfg.Validate("list"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
