// Package config loads application configuration and the indicator catalog.
// Configuration is read once at process start and treated as immutable for
// the lifetime of a run.
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
	Municipality MunicipalityConfig `yaml:"municipality" mapstructure:"municipality"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Sync         SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Sources      SourcesConfig      `yaml:"sources" mapstructure:"sources"`
	Freshness    FreshnessConfig    `yaml:"freshness" mapstructure:"freshness"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	CatalogPath  string             `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// MunicipalityConfig identifies the single municipality the pipeline serves.
type MunicipalityConfig struct {
	Code string `yaml:"code" mapstructure:"code"` // IBGE 7-digit code
	Name string `yaml:"name" mapstructure:"name"`
	UF   string `yaml:"uf" mapstructure:"uf"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SyncConfig tunes the acquisition pipeline.
type SyncConfig struct {
	Workers            int `yaml:"workers" mapstructure:"workers"`
	AdapterTimeoutSecs int `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`
	MaxRetries         int `yaml:"max_retries" mapstructure:"max_retries"`
}

// SourcesConfig holds endpoints and paths shared by the source adapters.
type SourcesConfig struct {
	SidraBaseURL string  `yaml:"sidra_base_url" mapstructure:"sidra_base_url"`
	SidraRate    float64 `yaml:"sidra_rate" mapstructure:"sidra_rate"` // requests/sec
	DataDir      string  `yaml:"data_dir" mapstructure:"data_dir"`     // manually dropped flat files
	FTPHost      string  `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser      string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword  string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// FreshnessConfig maps indicator categories to staleness thresholds in years.
// Census-derived categories tolerate a decade; monthly labor series do not.
type FreshnessConfig struct {
	DefaultYears int            `yaml:"default_years" mapstructure:"default_years"`
	Categories   map[string]int `yaml:"categories" mapstructure:"categories"`
}

// ThresholdYears returns the staleness threshold for a category.
func (f FreshnessConfig) ThresholdYears(category string) int {
	if y, ok := f.Categories[strings.ToLower(category)]; ok && y > 0 {
		return y
	}
	if f.DefaultYears > 0 {
		return f.DefaultYears
	}
	return 2
}

// ServerConfig configures the read-only HTTP API.
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

	v.SetConfigName("painel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("municipality.code", "3127701")
	v.SetDefault("municipality.name", "Governador Valadares")
	v.SetDefault("municipality.uf", "MG")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "painel.db")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.adapter_timeout_secs", 30)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sources.sidra_base_url", "https://apisidra.ibge.gov.br")
	v.SetDefault("sources.sidra_rate", 5.0)
	v.SetDefault("sources.data_dir", "data/raw")
	v.SetDefault("sources.ftp_host", "ftp.mtps.gov.br")
	v.SetDefault("freshness.default_years", 2)
	v.SetDefault("freshness.categories", map[string]int{
		"demografia":       11, // census cadence
		"economia":         3,
		"trabalho e renda": 1,
		"educação":         2,
		"saúde":            2,
	})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("catalog_path", "indicators.yaml")

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
