package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	// Store is "memory" or "external".
	Store string `mapstructure:"store"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Nats     NatsConfig     `mapstructure:"nats"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	Issuer     string `mapstructure:"issuer"`
	ServiceKey string `mapstructure:"service_key"`
}

type CryptoConfig struct {
	Key string `mapstructure:"key"`
}

type MongoConfig struct {
	URI         string        `mapstructure:"uri"`
	Database    string        `mapstructure:"database"`
	MaxPoolSize uint64        `mapstructure:"max_pool_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

type NatsConfig struct {
	Servers       []string `mapstructure:"servers"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
}

type LimitsConfig struct {
	MessagesPerWindow int           `mapstructure:"messages_per_window"`
	Window            time.Duration `mapstructure:"window"`
	// Backpressure names the slow-consumer policy: "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`
}

func (c *Config) Debug() bool { return c.Mode == "debug" }

func (c *Config) External() bool { return c.Store == "external" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("log_level", "info")
	v.SetDefault("store", "memory")

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.service_key", "")
	v.SetDefault("crypto.key", "")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "huddle")
	v.SetDefault("mongo.max_pool_size", 20)
	v.SetDefault("mongo.timeout", "10s")
	v.SetDefault("postgres.dsn", "postgres://localhost:5432/huddle")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presence_ttl", "24h")
	v.SetDefault("nats.servers", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject_prefix", "notifications")

	v.SetDefault("limits.messages_per_window", 10)
	v.SetDefault("limits.window", "10s")
	v.SetDefault("limits.backpressure", "kick")
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName on top of the defaults. A missing file is not an
// error. HUDDLE_* environment variables win over both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s\n", cfg.Mode, cfg.Port, cfg.Store)
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case "memory", "external":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Limits.MessagesPerWindow <= 0 || c.Limits.Window <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	switch c.Limits.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Limits.Backpressure)
	}
	if !c.Debug() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required outside debug mode")
	}
	return nil
}
