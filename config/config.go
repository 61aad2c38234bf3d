// Package config loads ledger service configuration.
//
// Sources, later ones winning:
//  1. built-in defaults
//  2. an optional YAML file
//  3. a .env file in the working directory (missing file ignored)
//  4. BRC_* environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Log            LogConfig            `yaml:"log"`
	Posting        PostingConfig        `yaml:"posting"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects the store. Path is used by sqlite, MongoURI and
// MongoDatabase by mongodb.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PostingConfig struct {
	MirrorGeneralLedger bool `yaml:"mirror_general_ledger"`
}

type ReconciliationConfig struct {
	RetryEnabled     bool          `yaml:"retry_enabled"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
}

const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverMongoDB = "mongodb"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "transport-ledger", Environment: "development"},
		Server:  ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Database: DatabaseConfig{
			Driver:        DriverSQLite,
			Path:          "./data/ledger.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "transport_ledger",
		},
		Log:            LogConfig{Level: "info", Format: "json"},
		Reconciliation: ReconciliationConfig{RetryInterval: time.Minute, RetryMaxAttempts: 10},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Try to load .env from current directory (ignore error if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString("BRC_SERVICE_NAME", &c.Service.Name)
	setString("BRC_SERVICE_ENVIRONMENT", &c.Service.Environment)
	setString("BRC_DATABASE_DRIVER", &c.Database.Driver)
	setString("BRC_DATABASE_PATH", &c.Database.Path)
	setString("BRC_DATABASE_MONGO_URI", &c.Database.MongoURI)
	setString("BRC_DATABASE_MONGO_DATABASE", &c.Database.MongoDatabase)
	setString("BRC_LOG_LEVEL", &c.Log.Level)
	setString("BRC_LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("BRC_SERVER_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if err := setInt("BRC_SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := setInt("BRC_RECONCILIATION_RETRY_MAX_ATTEMPTS", &c.Reconciliation.RetryMaxAttempts); err != nil {
		return err
	}
	if err := setBool("BRC_POSTING_MIRROR_GENERAL_LEDGER", &c.Posting.MirrorGeneralLedger); err != nil {
		return err
	}
	if err := setBool("BRC_RECONCILIATION_RETRY_ENABLED", &c.Reconciliation.RetryEnabled); err != nil {
		return err
	}
	if v := os.Getenv("BRC_RECONCILIATION_RETRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BRC_RECONCILIATION_RETRY_INTERVAL: %w", err)
		}
		c.Reconciliation.RetryInterval = d
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			problems = append(problems, "database.path is required for sqlite")
		}
	case DriverMongoDB:
		if c.Database.MongoURI == "" {
			problems = append(problems, "database.mongo_uri is required for mongodb")
		}
		if c.Database.MongoDatabase == "" {
			problems = append(problems, "database.mongo_database is required for mongodb")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}
	if c.Reconciliation.RetryEnabled && c.Reconciliation.RetryInterval <= 0 {
		problems = append(problems, "reconciliation.retry_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %s", key, v)
	}
	*dst = n
	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean value for %s: %s", key, v)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
