package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// PostgresConfig is optional; an empty DSN means the catalog is not read from the database.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type FeedConfig struct {
	Source      string        `mapstructure:"source"` // "kis" or "redis"
	URL         string        `mapstructure:"url"`
	BaseAPIURL  string        `mapstructure:"base_api_url"`
	AppKey      string        `mapstructure:"app_key"`
	AppSecret   string        `mapstructure:"app_secret"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	MaxRetries  int           `mapstructure:"max_retries"` // 0 = retry forever
}

type CatalogConfig struct {
	File        string   `mapstructure:"file"`
	Instruments []string `mapstructure:"instruments"` // "Name:Code"
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type GatewayConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// .env values become real env vars so AutomaticEnv can see them
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees nested keys that were bound explicitly
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "postgres.dsn")
	bindEnv(v, "feed.source", "feed.url", "feed.base_api_url", "feed.app_key", "feed.app_secret",
		"feed.backoff_base", "feed.backoff_max", "feed.max_retries")
	bindEnv(v, "catalog.file", "catalog.instruments")
	bindEnv(v, "processor.num_workers")
	bindEnv(v, "gateway.allow_origins")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "stock-processor-group")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("feed.source", "redis")
	v.SetDefault("feed.url", "ws://ops.koreainvestment.com:21000/tryitout/H0STCNT0")
	v.SetDefault("feed.base_api_url", "https://openapi.koreainvestment.com:9443")
	v.SetDefault("feed.backoff_base", 500*time.Millisecond)
	v.SetDefault("feed.backoff_max", 30*time.Second)
	v.SetDefault("feed.max_retries", 0)

	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.instruments", []string{
		"삼성전자:005930",
		"SK하이닉스:000660",
		"LG에너지솔루션:373220",
		"NAVER:035420",
		"카카오:035720",
	})

	v.SetDefault("processor.num_workers", 4)

	v.SetDefault("gateway.allow_origins", []string{"http://localhost:3000"})
}

// Validate checks the cross-field rules viper cannot express.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	switch c.Feed.Source {
	case "kis", "redis":
	default:
		return fmt.Errorf("unknown feed source %q", c.Feed.Source)
	}
	if c.Feed.BackoffBase <= 0 || c.Feed.BackoffMax < c.Feed.BackoffBase {
		return fmt.Errorf("invalid feed backoff: base=%s max=%s", c.Feed.BackoffBase, c.Feed.BackoffMax)
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor workers must be positive, got %d", c.Processor.NumWorkers)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
