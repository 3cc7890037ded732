package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PERSONAS_DB_HOST.
const EnvPrefix = "PERSONAS"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" envconfig:"server"`
	Database  DatabaseConfig  `mapstructure:"database" envconfig:"db"`
	Log       LogConfig       `mapstructure:"log" envconfig:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors" envconfig:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" split_words:"true"`
	Mode            string        `mapstructure:"mode" split_words:"true"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	TimeoutSeconds  int           `mapstructure:"timeout_seconds" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" split_words:"true"`
}

func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" split_words:"true"`
	Host            string        `mapstructure:"host" split_words:"true"`
	Port            int           `mapstructure:"port" split_words:"true"`
	User            string        `mapstructure:"user" split_words:"true"`
	Password        string        `mapstructure:"password" split_words:"true"`
	Name            string        `mapstructure:"name" split_words:"true"`
	SSLMode         string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" split_words:"true"`
	Format string `mapstructure:"format" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" split_words:"true"`
	Backend  string        `mapstructure:"backend" split_words:"true"`
	RPS      float64       `mapstructure:"rps" split_words:"true"`
	Burst    int           `mapstructure:"burst" split_words:"true"`
	Window   time.Duration `mapstructure:"window" split_words:"true"`
	RedisURL string        `mapstructure:"redis_url" split_words:"true"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" split_words:"true"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 35*time.Second)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "personas")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.redis_url", "redis://localhost:6379/0")

	v.SetDefault("cors.allow_origins", []string{"*"})
}

// LoadConfig reads config.yaml from path, or from the usual search
// directories when path is empty, then applies PERSONAS_* environment
// overrides. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Server.TimeoutSeconds <= 0 {
		problems = append(problems, "server.timeout_seconds must be positive")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not one of postgres, memory", c.Database.Driver))
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case BackendMemory:
			if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
				problems = append(problems, "rate_limit.rps and rate_limit.burst must be positive")
			}
		case BackendRedis:
			if c.RateLimit.Burst <= 0 || c.RateLimit.Window <= 0 {
				problems = append(problems, "rate_limit.burst and rate_limit.window must be positive")
			}
			if c.RateLimit.RedisURL == "" {
				problems = append(problems, "rate_limit.redis_url is required for the redis backend")
			}
		default:
			problems = append(problems, fmt.Sprintf("rate_limit.backend %q is not one of memory, redis", c.RateLimit.Backend))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
