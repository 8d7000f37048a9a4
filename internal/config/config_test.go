package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtmp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/history", cfg.History.Dir)
	assert.Equal(t, 500, cfg.History.RetentionCap)
	assert.Equal(t, []int{60, 252}, cfg.History.Windows)
	assert.Equal(t, "https://api.stlouisfed.org/fred", cfg.FRED.BaseURL)
	assert.Contains(t, cfg.FRED.Series, "T10Y2Y")
	assert.Equal(t, 400, cfg.FRED.Limit)
	assert.Equal(t, "big5", cfg.TWSE.Charset)
	assert.Equal(t, "https://www.twse.com.tw", cfg.TWSE.BaseURL)
	assert.Equal(t, []string{"^spx", "^vix"}, cfg.PriceVol.Symbols)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, "signal.db", cfg.Ledger.DatabaseURL)
	assert.Equal(t, "data/manifest.yaml", cfg.Manifest.Path)
	assert.Equal(t, "reports", cfg.Report.Dir)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtmp(t)

	yaml := `
history:
  dir: /var/lib/signals
  retention_cap: 750
ledger:
  driver: postgres
  database_url: postgres://localhost/signals
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/signals", cfg.History.Dir)
	assert.Equal(t, 750, cfg.History.RetentionCap)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, []int{60, 252}, cfg.History.Windows)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtmp(t)

	yaml := "fred:\n  api_key: from-file\n"
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	t.Setenv("SIGNAL_FRED_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.FRED.APIKey)
}

func TestLoadBadYAML(t *testing.T) {
	chtmp(t)

	require.NoError(t, os.WriteFile("config.yaml", []byte(":\nnot yaml: ["), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false},
		{"console debug", LogConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LogConfig{Level: "loud", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, zap.L())
		})
	}
}

func TestLoadWindowsOverride(t *testing.T) {
	chtmp(t)

	yaml := "history:\n  windows: [20, 120]\n"
	require.NoError(t, os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int{20, 120}, cfg.History.Windows)
}
