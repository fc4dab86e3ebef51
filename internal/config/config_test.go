package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "common", cfg.Scanning.Ports)
	assert.Equal(t, 1024, cfg.Scanning.Concurrency)
	assert.Equal(t, 1200*time.Millisecond, cfg.Scanning.Timeout)
	assert.True(t, cfg.Scanning.Banner)
	assert.Equal(t, 3*time.Second, cfg.Scanning.ResolveTimeout)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "yaml overrides defaults",
			file: "quickscope.yaml",
			content: `
scanning:
  ports: "22,80,443"
  exclude: "443"
  concurrency: 64
  timeout: 2s
  banner_timeout: 500ms
  nameserver: 9.9.9.9
  rate_limit: 200
  max_duration: 5m
output:
  format: ndjson
  all: true
logging:
  level: debug
  format: json
metrics:
  enabled: true
  listen_addr: ":9464"
watch:
  schedule: "*/15 * * * *"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "22,80,443", cfg.Scanning.Ports)
				assert.Equal(t, "443", cfg.Scanning.Exclude)
				assert.Equal(t, 64, cfg.Scanning.Concurrency)
				assert.Equal(t, 2*time.Second, cfg.Scanning.Timeout)
				assert.Equal(t, 500*time.Millisecond, cfg.Scanning.BannerTimeout)
				assert.Equal(t, "9.9.9.9", cfg.Scanning.Nameserver)
				assert.Equal(t, 200, cfg.Scanning.RateLimit)
				assert.Equal(t, 5*time.Minute, cfg.Scanning.MaxDuration)
				assert.True(t, cfg.Scanning.Banner, "unset fields keep their defaults")
				assert.Equal(t, "ndjson", cfg.Output.Format)
				assert.True(t, cfg.Output.All)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "stderr", cfg.Logging.Output)
				assert.True(t, cfg.Metrics.Enabled)
				assert.Equal(t, ":9464", cfg.Metrics.ListenAddr)
				assert.Equal(t, "*/15 * * * *", cfg.Watch.Schedule)
			},
		},
		{
			name:    "json config",
			file:    "quickscope.json",
			content: `{"scanning": {"ports": "1-1024", "concurrency": 128}, "output": {"format": "csv", "csv_header": true}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "1-1024", cfg.Scanning.Ports)
				assert.Equal(t, 128, cfg.Scanning.Concurrency)
				assert.Equal(t, "csv", cfg.Output.Format)
				assert.True(t, cfg.Output.CSVHeader)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    errors.ErrorCode
	}{
		{"invalid yaml", "bad.yaml", "scanning: [unterminated", errors.CodeConfiguration},
		{"invalid json", "bad.json", `{"scanning": `, errors.CodeConfiguration},
		{"bad duration", "dur.yaml", "scanning:\n  timeout: soon\n", errors.CodeConfiguration},
		{"zero concurrency", "conc.yaml", "scanning:\n  concurrency: 0\n", errors.CodeValidation},
		{"unknown format", "fmt.yaml", "output:\n  format: xml\n", errors.CodeValidation},
		{"unknown log level", "lvl.yaml", "logging:\n  level: chatty\n", errors.CodeValidation},
		{"bad listen address", "addr.yaml", "metrics:\n  listen_addr: nowhere\n", errors.CodeValidation},
		{"metrics without address", "noaddr.yaml", "metrics:\n  enabled: true\n  listen_addr: \"\"\n", errors.CodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestValidateReportsField(t *testing.T) {
	cfg := Default()
	cfg.Scanning.RateLimit = -5

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Config.Scanning.RateLimit", cfgErr.Field)
	assert.Equal(t, -5, cfgErr.Value)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "quickscope.yaml")

	cfg := Default()
	cfg.Scanning.Ports = "8000-8100"
	cfg.Scanning.Timeout = 750 * time.Millisecond
	cfg.Scanning.BannerTimeout = 300 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestScanOptions(t *testing.T) {
	cfg := Default()
	cfg.Scanning.Exclude = "23"
	cfg.Scanning.Nameserver = "1.1.1.1"

	opts := cfg.ScanOptions([]string{"10.0.0.0/30"})

	assert.Equal(t, []string{"10.0.0.0/30"}, opts.Targets)
	assert.Equal(t, "common", opts.Ports)
	assert.Equal(t, "23", opts.Exclude)
	assert.Equal(t, "1.1.1.1", opts.Nameserver)
	assert.Equal(t, cfg.Scanning.Concurrency, opts.Concurrency)
	assert.NoError(t, opts.Validate())
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	assert.Equal(t, logging.Config{
		Level:  logging.LevelDebug,
		Format: logging.FormatJSON,
		Output: "stderr",
	}, cfg.LoggerConfig())
}
