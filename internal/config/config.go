// Package config loads service settings from an optional YAML file and
// environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HaoJinjin/open-soda/internal/store"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Data       DataConfig       `yaml:"data"`
	Prediction PredictionConfig `yaml:"prediction"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Store      StoreConfig      `yaml:"store"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// DataConfig points at the project dataset.
type DataConfig struct {
	CSVPath    string `yaml:"csv_path"`
	ForkTarget string `yaml:"fork_target"`
}

type PredictionConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     uint64  `yaml:"seed"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig enables the result cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// StoreConfig enables job persistence when DSN is set.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8000,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
		},
		Data: DataConfig{
			CSVPath:    "data/opensoda_projects.csv",
			ForkTarget: "technical_fork",
		},
		Prediction: PredictionConfig{TestSize: 0.3, Seed: 42},
		Log:        LogConfig{Level: "info"},
		Redis:      RedisConfig{DB: 0, TTL: 10 * time.Minute},
		Store:      StoreConfig{Driver: store.DriverSQLite},
	}
}

// Load reads path on top of the defaults and applies environment
// overrides. An empty or missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.GetLoggerWithName("config").Debug("Config file not found, using defaults", "config.path", path)
		case err != nil:
			return nil, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func (c *Config) applyEnvOverrides() error {
	port, err := getIntEnv("SERVER_PORT", c.Server.Port)
	if err != nil {
		return errors.NewValidationError("SERVER_PORT", "must be an integer", os.Getenv("SERVER_PORT"))
	}
	c.Server.Port = port
	c.Data.CSVPath = getEnv("CSV_PATH", c.Data.CSVPath)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("STORE_DSN", c.Store.DSN)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	return nil
}

// Validate checks ranges the rest of the service relies on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", "must be in 1..65535", c.Server.Port)
	}
	if c.Prediction.TestSize <= 0 || c.Prediction.TestSize >= 1 {
		return errors.NewValidationError("prediction.test_size", "must be in (0, 1)", c.Prediction.TestSize)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	if c.Store.DSN != "" && c.Store.Driver != store.DriverSQLite && c.Store.Driver != store.DriverPostgres {
		return errors.NewValidationError("store.driver", "must be sqlite3 or pgx", c.Store.Driver)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
