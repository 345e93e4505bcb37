// Package config loads healthmap settings from config.yaml, a .env file, and
// HEALTHMAP_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/healthmap/internal/db"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Boundary  BoundaryConfig  `yaml:"boundary" mapstructure:"boundary"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Proximity ProximityConfig `yaml:"proximity" mapstructure:"proximity"`
	Impact    ImpactConfig    `yaml:"impact" mapstructure:"impact"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BoundaryConfig selects where region polygons come from. Source is a file
// path (.geojson, .json, .shp, .zip), an http(s) URL, or "postgis".
type BoundaryConfig struct {
	Source       string   `yaml:"source" mapstructure:"source"`
	NameProperty string   `yaml:"name_property" mapstructure:"name_property"`
	Exclude      []string `yaml:"exclude" mapstructure:"exclude"`
	Table        string   `yaml:"table" mapstructure:"table"`
	NameColumn   string   `yaml:"name_column" mapstructure:"name_column"`
	GeomColumn   string   `yaml:"geom_column" mapstructure:"geom_column"`
}

// GeocodeConfig configures reverse geocoding. Providers are tried in order.
type GeocodeConfig struct {
	Providers []string      `yaml:"providers" mapstructure:"providers"`
	GoogleKey string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRating int           `yaml:"max_rating" mapstructure:"max_rating"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// RedisConfig enables the shared geocode cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// ProximityConfig holds nearby-report defaults.
type ProximityConfig struct {
	RadiusKM float64 `yaml:"radius_km" mapstructure:"radius_km"`
	TopK     int     `yaml:"top_k" mapstructure:"top_k"`
}

// ImpactConfig holds impact analysis defaults.
type ImpactConfig struct {
	BeforeWeeks int `yaml:"before_weeks" mapstructure:"before_weeks"`
	AfterWeeks  int `yaml:"after_weeks" mapstructure:"after_weeks"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEALTHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "healthmap.db")
	v.SetDefault("boundary.source", "")
	v.SetDefault("boundary.exclude", []string{})
	v.SetDefault("boundary.name_property", "name")
	v.SetDefault("boundary.table", "regions")
	v.SetDefault("boundary.name_column", "name")
	v.SetDefault("boundary.geom_column", "geom")
	v.SetDefault("geocode.providers", []string{})
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.max_rating", 20)
	v.SetDefault("geocode.timeout", 3*time.Second)
	v.SetDefault("geocode.cache_size", 10000)
	v.SetDefault("geocode.cache_ttl", time.Hour)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("proximity.radius_km", 5.0)
	v.SetDefault("proximity.top_k", 20)
	v.SetDefault("impact.before_weeks", 4)
	v.SetDefault("impact.after_weeks", 4)
	v.SetDefault("impact.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
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

// Validate checks the settings a command mode depends on. Modes are "serve",
// "store", and "boundary".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.storeErrors()...)
		errs = append(errs, c.boundaryErrors()...)
		errs = append(errs, c.geocodeErrors()...)
		if c.Proximity.RadiusKM <= 0 {
			errs = append(errs, "proximity.radius_km must be > 0")
		}
		if c.Proximity.TopK < 1 {
			errs = append(errs, "proximity.top_k must be >= 1")
		}
	case "store":
		errs = append(errs, c.storeErrors()...)
		if c.Impact.Concurrency < 1 || c.Impact.Concurrency > 64 {
			errs = append(errs, "impact.concurrency must be between 1 and 64")
		}
	case "boundary":
		errs = append(errs, c.boundaryErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) boundaryErrors() []string {
	var errs []string
	if c.Boundary.Source == "" {
		errs = append(errs, "boundary.source is required")
	}
	if c.Boundary.Source == "postgis" && c.Store.Driver != "postgres" {
		errs = append(errs, "boundary.source postgis requires store.driver postgres")
	}
	return errs
}

func (c *Config) geocodeErrors() []string {
	var errs []string
	for _, p := range c.Geocode.Providers {
		switch p {
		case "tiger":
			if c.Store.Driver != "postgres" {
				errs = append(errs, "geocode provider tiger requires store.driver postgres")
			}
		case "google":
			if c.Geocode.GoogleKey == "" {
				errs = append(errs, "geocode.google_api_key is required for provider google")
			}
		default:
			errs = append(errs, "unknown geocode provider "+p)
		}
	}
	return errs
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
