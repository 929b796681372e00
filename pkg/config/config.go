package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatabaseDriver is the default store backend.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default location of the sqlite database.
	DefaultSQLitePath = "wptview.db"

	// DefaultPageLimit is the default number of tests per results page.
	DefaultPageLimit = 50

	// DefaultImportConcurrency is the number of sources imported in parallel.
	DefaultImportConcurrency = 4

	// DefaultTestCacheSize is the number of test ids the ingest engine
	// remembers between imports.
	DefaultTestCacheSize = 50000

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// envPrefix is prepended to every environment variable override,
	// e.g. WPTVIEW_GLOBAL_LOG_LEVEL.
	envPrefix = "WPTVIEW"
)

// Config is the root configuration for wptview.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// FetchConfig controls how remote logs are read.
type FetchConfig struct {
	// Timeout bounds a single URL fetch. Empty means block until the
	// remote end answers or fails.
	Timeout   string   `yaml:"timeout,omitempty" mapstructure:"timeout"`
	UserAgent string   `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
	S3        S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config contains settings for reading s3:// log sources.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// QueryConfig contains result query defaults.
type QueryConfig struct {
	PageLimit int `yaml:"page_limit" mapstructure:"page_limit"`
}

// ImportConfig contains log import settings.
type ImportConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// TestCacheSize bounds the test name to id cache. Zero disables it.
	TestCacheSize int `yaml:"test_cache_size" mapstructure:"test_cache_size"`
}

// Load reads and merges the given configuration files in order, applies
// WPTVIEW_* environment overrides and fills in defaults. Calling Load
// without files yields the default configuration.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, path := range paths {
		v.SetConfigFile(path)

		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every known key with viper. AutomaticEnv only
// resolves keys viper already knows about, so env overrides depend on this.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", DefaultDatabaseDriver)
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "wptview")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("fetch.timeout", "")
	v.SetDefault("fetch.user_agent", "wptview")
	v.SetDefault("fetch.s3.enabled", false)
	v.SetDefault("fetch.s3.endpoint_url", "")
	v.SetDefault("fetch.s3.region", "")
	v.SetDefault("fetch.s3.access_key_id", "")
	v.SetDefault("fetch.s3.secret_access_key", "")
	v.SetDefault("fetch.s3.force_path_style", false)

	v.SetDefault("query.page_limit", DefaultPageLimit)
	v.SetDefault("import.concurrency", DefaultImportConcurrency)
	v.SetDefault("import.test_cache_size", DefaultTestCacheSize)

	v.SetDefault("api.server.listen", DefaultListen)
	v.SetDefault("api.server.cors_origins", []string{})
	v.SetDefault("api.server.rate_limit.enabled", false)
	v.SetDefault("api.server.rate_limit.requests_per_minute", 600)
}

// applyDefaults sets default values for options left empty by the
// config files, e.g. an explicit empty string in YAML.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Query.PageLimit <= 0 {
		c.Query.PageLimit = DefaultPageLimit
	}

	if c.Import.Concurrency <= 0 {
		c.Import.Concurrency = DefaultImportConcurrency
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if _, err := c.Fetch.ParseTimeout(); err != nil {
		return err
	}

	if c.Import.TestCacheSize < 0 {
		return fmt.Errorf("import.test_cache_size must not be negative")
	}

	if c.API.Server.RateLimit.Enabled &&
		c.API.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf(
			"api.server.rate_limit.requests_per_minute must be positive",
		)
	}

	return nil
}

// ParseTimeout parses fetch.timeout. Zero means no timeout.
func (c *FetchConfig) ParseTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing fetch.timeout: %w", err)
	}

	if d < 0 {
		return 0, fmt.Errorf("fetch.timeout must not be negative")
	}

	return d, nil
}
