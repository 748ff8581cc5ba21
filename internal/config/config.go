// Package config loads the server configuration from defaults, an optional
// .env file, an optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pong-server/internal/pong"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		StaticDir       string        `yaml:"static_dir"`
	} `yaml:"server"`

	Game pong.Config `yaml:"game"`

	Limits struct {
		MessagesPerSecond int `yaml:"messages_per_second"`
		SendBuffer        int `yaml:"send_buffer"`
	} `yaml:"limits"`

	Storage struct {
		Driver        string        `yaml:"driver"`
		PostgresURL   string        `yaml:"postgres_url"`
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		HistoryLimit  int           `yaml:"history_limit"`
		WriteTimeout  time.Duration `yaml:"write_timeout"`
	} `yaml:"storage"`

	Events struct {
		NATSURL       string `yaml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"events"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 3000
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.IdleTimeout = time.Minute
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.StaticDir = "public"

	c.Game = pong.DefaultConfig()

	c.Limits.MessagesPerSecond = 120
	c.Limits.SendBuffer = 32

	c.Storage.Driver = DriverMemory
	c.Storage.RedisAddr = "localhost:6379"
	c.Storage.HistoryLimit = 100
	c.Storage.WriteTimeout = 5 * time.Second

	c.Events.SubjectPrefix = "pong"

	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load builds a Config. A missing .env or YAML file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.PostgresURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("INVALID_CONFIG: port %d out of range", c.Server.Port)
	}
	if err := c.Game.Validate(); err != nil {
		return err
	}
	if c.Limits.MessagesPerSecond <= 0 || c.Limits.SendBuffer <= 0 {
		return fmt.Errorf("INVALID_CONFIG: limits must be positive")
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("INVALID_CONFIG: postgres driver needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("INVALID_CONFIG: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
