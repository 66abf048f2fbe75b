package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Identity   IdentityConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Repository RepositoryConfig
	Cleanup    CleanupConfig
	MQTT       MQTTConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	Banner          bool          `mapstructure:"banner"`
}

// IdentityConfig selects the relational store holding sensor identities.
// Driver is "postgres" or "sqlite"; Path is only used by sqlite.
type IdentityConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	TelemetryTTL time.Duration `mapstructure:"telemetry_ttl"`
}

type RepositoryConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	HydrationTimeout time.Duration `mapstructure:"hydration_timeout"`
	MaxTelemetryAge  time.Duration `mapstructure:"max_telemetry_age"`
	RequireIdentity  bool          `mapstructure:"require_identity"`
	CascadeDelete    bool          `mapstructure:"cascade_delete"`
}

type CleanupConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type MonitoringConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
}

// Load initializes configuration from .env, environment variables and config file
func Load() (*Config, error) {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SENSORHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// Summary names the backing stores without credentials, for startup logs
func (c *Config) Summary() string {
	identity := fmt.Sprintf("postgres %s:%d/%s", c.Identity.Host, c.Identity.Port, c.Identity.DBName)
	if c.Identity.Driver == "sqlite" {
		identity = "sqlite " + c.Identity.Path
	}
	mqtt := "off"
	if c.MQTT.Enabled {
		mqtt = c.MQTT.Broker
	}
	return fmt.Sprintf("identity=%s metadata=%s/%s telemetry=%s:%d/%d mqtt=%s",
		identity, c.Mongo.Database, c.Mongo.Collection, c.Redis.Host, c.Redis.Port, c.Redis.DB, mqtt)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.banner", true)

	// Identity defaults
	v.SetDefault("identity.driver", "postgres")
	v.SetDefault("identity.host", "localhost")
	v.SetDefault("identity.port", 5432)
	v.SetDefault("identity.dbname", "sensors")
	v.SetDefault("identity.sslmode", "disable")
	v.SetDefault("identity.path", "sensorhub.db")

	// Mongo defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "sensors")
	v.SetDefault("mongo.collection", "sensor_metadata")
	v.SetDefault("mongo.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.telemetry_ttl", "0s")

	// Repository defaults
	v.SetDefault("repository.concurrency", 8)
	v.SetDefault("repository.store_timeout", "5s")
	v.SetDefault("repository.hydration_timeout", "2s")
	v.SetDefault("repository.max_telemetry_age", "0s")
	v.SetDefault("repository.require_identity", true)
	v.SetDefault("repository.cascade_delete", true)

	// Cleanup defaults
	v.SetDefault("cleanup.interval", "10m")
	v.SetDefault("cleanup.grace_period", "5m")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "sensorhub")
	v.SetDefault("mqtt.topic", "sensors/+/telemetry")
	v.SetDefault("mqtt.qos", 1)

	// Monitoring defaults
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

func validateConfig(config *Config) error {
	switch config.Identity.Driver {
	case "postgres":
		if config.Identity.Host == "" {
			return fmt.Errorf("identity host is required")
		}
	case "sqlite":
		if config.Identity.Path == "" {
			return fmt.Errorf("identity path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported identity driver %q", config.Identity.Driver)
	}
	if config.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if config.Mongo.Database == "" || config.Mongo.Collection == "" {
		return fmt.Errorf("mongo database and collection are required")
	}
	if config.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if config.Repository.Concurrency < 1 {
		return fmt.Errorf("repository concurrency must be at least 1")
	}
	durations := map[string]time.Duration{
		"repository.store_timeout":     config.Repository.StoreTimeout,
		"repository.hydration_timeout": config.Repository.HydrationTimeout,
		"repository.max_telemetry_age": config.Repository.MaxTelemetryAge,
		"redis.telemetry_ttl":          config.Redis.TelemetryTTL,
		"cleanup.interval":             config.Cleanup.Interval,
		"cleanup.grace_period":         config.Cleanup.GracePeriod,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	return nil
}
