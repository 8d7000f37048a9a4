// Package config loads the application configuration from file and
// environment, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	FRED     FREDConfig     `yaml:"fred" mapstructure:"fred"`
	TWSE     TWSEConfig     `yaml:"twse" mapstructure:"twse"`
	JPX      JPXConfig      `yaml:"jpx" mapstructure:"jpx"`
	PriceVol PriceVolConfig `yaml:"pricevol" mapstructure:"pricevol"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// HistoryConfig configures the per-source observation history logs.
type HistoryConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	RetentionCap int    `yaml:"retention_cap" mapstructure:"retention_cap"`
	Windows      []int  `yaml:"windows" mapstructure:"windows"`
}

// FREDConfig configures the FRED observations source.
type FREDConfig struct {
	APIKey  string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Series  []string `yaml:"series" mapstructure:"series"`
	Limit   int      `yaml:"limit" mapstructure:"limit"`
}

// TWSEConfig configures the TWSE margin-financing source.
type TWSEConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Charset string `yaml:"charset" mapstructure:"charset"`
}

// JPXConfig configures the JPX index valuation source.
type JPXConfig struct {
	WorkbookURL string   `yaml:"workbook_url" mapstructure:"workbook_url"`
	Indices     []string `yaml:"indices" mapstructure:"indices"`
	TempDir     string   `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// PriceVolConfig configures the daily price/volatility source.
type PriceVolConfig struct {
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Symbols []string `yaml:"symbols" mapstructure:"symbols"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// LedgerConfig configures the run ledger backend.
type LedgerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ManifestConfig configures URL pinning.
type ManifestConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ReportConfig configures markdown report output.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("history.dir", "data/history")
	v.SetDefault("history.retention_cap", 500)
	v.SetDefault("history.windows", []int{60, 252})
	v.SetDefault("fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("fred.series", []string{"FEDFUNDS", "GS10", "GS2", "T10Y2Y", "VIXCLS", "SP500"})
	v.SetDefault("fred.limit", 400)
	v.SetDefault("twse.base_url", "https://www.twse.com.tw")
	v.SetDefault("twse.charset", "big5")
	v.SetDefault("jpx.workbook_url", "https://www.jpx.co.jp/english/markets/statistics-equities/misc/report.xlsx")
	v.SetDefault("jpx.indices", []string{"TOPIX", "Prime Market"})
	v.SetDefault("jpx.temp_dir", "/tmp/signal-cli")
	v.SetDefault("pricevol.base_url", "https://stooq.com")
	v.SetDefault("pricevol.symbols", []string{"^spx", "^vix"})
	v.SetDefault("fetch.user_agent", "signal-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.database_url", "signal.db")
	v.SetDefault("manifest.path", "data/manifest.yaml")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("server.port", 8090)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
