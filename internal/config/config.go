package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"db"`
	Grades   GradesConfig   `mapstructure:"grades"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// DatabaseConfig points at the SQLite warehouse.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// GradesConfig selects where the grade weight table comes from.
// When Path is empty the table stored in the warehouse is used, seeded with
// the built-in scale on first run.
type GradesConfig struct {
	Path string `mapstructure:"path"`
}

// ParserConfig tunes the transcript parser.
type ParserConfig struct {
	UndergraduateMarker string `mapstructure:"undergraduate_marker"`
}

// BatchConfig controls folder ingestion.
type BatchConfig struct {
	Folder     string        `mapstructure:"folder"`
	Workers    int           `mapstructure:"workers"`
	DocTimeout time.Duration `mapstructure:"doc_timeout"`
	Schedule   string        `mapstructure:"schedule"` // cron spec, empty disables
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port      int           `mapstructure:"port"`
	StaticDir string        `mapstructure:"static_dir"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	BodyLimit int           `mapstructure:"body_limit"` // bytes
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "transcripts.db")
	v.SetDefault("grades.path", "")
	v.SetDefault("parser.undergraduate_marker", `Tahap:\s*Sarjana`)
	v.SetDefault("batch.folder", "transkrip")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.doc_timeout", 30*time.Second)
	v.SetDefault("batch.schedule", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.cache_ttl", 15*time.Minute)
	v.SetDefault("server.body_limit", 32<<20)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. A .env file in the working directory is loaded first if
// present. Environment keys use the TRANSCRIPT_ prefix, e.g.
// TRANSCRIPT_DB_PATH or TRANSCRIPT_BATCH_WORKERS.
//
// path may be empty; TRANSCRIPT_CONFIG is consulted next, then ./config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRANSCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("TRANSCRIPT_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	return nil
}
