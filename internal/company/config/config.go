// Package config loads the trigger's settings from a YAML file, an optional
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when none is given.
var DefaultPath = filepath.Join("internal", "company", "config", "config.yaml")

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Config struct for YAML configuration
type Config struct {
	GRPCPort int    `yaml:"GRPC_PORT" validate:"gte=0,lte=65535"`
	HTTPPort int    `yaml:"HTTP_PORT" validate:"gte=0,lte=65535"`
	LogLevel string `yaml:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`

	StoreBackend string `yaml:"STORE_BACKEND" validate:"required,oneof=memory sql redis"`

	DBDriver   string `yaml:"DB_DRIVER" validate:"required_if=StoreBackend sql,omitempty,oneof=postgres sqlite"`
	DBHost     string `yaml:"DB_HOST" validate:"required_if=DBDriver postgres"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME" validate:"required_if=DBDriver postgres"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`
	SQLitePath string `yaml:"SQLITE_PATH" validate:"required_if=DBDriver sqlite"`

	RedisAddr     string `yaml:"REDIS_ADDR" validate:"required_if=StoreBackend redis"`
	RedisPassword string `yaml:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"REDIS_DB" validate:"gte=0"`
	RedisPrefix   string `yaml:"REDIS_PREFIX"`

	KafkaBrokers        []string `yaml:"KAFKA_BROKERS"`
	Topic               string   `yaml:"TOPIC"`
	GroupID             string   `yaml:"GROUP_ID"`
	MaxDeliveryAttempts int      `yaml:"MAX_DELIVERY_ATTEMPTS" validate:"gte=1"`
}

// Default returns the settings used for keys missing from every source.
func Default() Config {
	return Config{
		GRPCPort:            50051,
		HTTPPort:            8080,
		LogLevel:            "info",
		StoreBackend:        BackendMemory,
		DBPort:              5432,
		DBSSLMode:           "disable",
		Topic:               "company_created",
		GroupID:             "company-create-trigger",
		MaxDeliveryAttempts: 5,
	}
}

// Load reads path (DefaultPath if empty) on top of Default, then applies
// environment overrides and validates the result. A missing file is not an
// error; a .env file in the working directory is loaded if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":      &cfg.LogLevel,
		"STORE_BACKEND":  &cfg.StoreBackend,
		"DB_DRIVER":      &cfg.DBDriver,
		"DB_HOST":        &cfg.DBHost,
		"DB_USER":        &cfg.DBUser,
		"DB_PASSWORD":    &cfg.DBPassword,
		"DB_NAME":        &cfg.DBName,
		"DB_SSLMODE":     &cfg.DBSSLMode,
		"SQLITE_PATH":    &cfg.SQLitePath,
		"REDIS_ADDR":     &cfg.RedisAddr,
		"REDIS_PASSWORD": &cfg.RedisPassword,
		"REDIS_PREFIX":   &cfg.RedisPrefix,
		"TOPIC":          &cfg.Topic,
		"GROUP_ID":       &cfg.GroupID,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"GRPC_PORT":             &cfg.GRPCPort,
		"HTTP_PORT":             &cfg.HTTPPort,
		"DB_PORT":               &cfg.DBPort,
		"REDIS_DB":              &cfg.RedisDB,
		"MAX_DELIVERY_ATTEMPTS": &cfg.MaxDeliveryAttempts,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return nil
}
