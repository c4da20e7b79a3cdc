// Package config loads the relay configuration from a YAML file and
// SHEETSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/sheetsync/internal/core/localhistory"
	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/relay"
)

// EnvPrefix of the environment variables overriding the file. Nested keys
// use underscores: SHEETSYNC_REDIS_ADDR sets redis.addr.
const EnvPrefix = "SHEETSYNC"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
	MySQL   MySQLConfig   `mapstructure:"mysql" yaml:"mysql"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr" yaml:"http_addr"`
	QUICAddr       string        `mapstructure:"quic_addr" yaml:"quic_addr"`
	MaxClients     int           `mapstructure:"max_clients" yaml:"max_clients"`
	MaxMessageSize int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Shards         int           `mapstructure:"shards" yaml:"shards"`
	FanOut         int           `mapstructure:"fan_out" yaml:"fan_out"`
}

type LogConfig struct {
	Level    string   `mapstructure:"level" yaml:"level"`
	Encoding string   `mapstructure:"encoding" yaml:"encoding"`
	Output   []string `mapstructure:"output" yaml:"output"`
	Sampling bool     `mapstructure:"sampling" yaml:"sampling"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// RedisConfig enables the Redis store, broker and presence when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// KafkaConfig enables the revision export when Brokers is set.
type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers" yaml:"brokers"`
	Topic     string   `mapstructure:"topic" yaml:"topic"`
	QueueSize int      `mapstructure:"queue_size" yaml:"queue_size"`
	Workers   int      `mapstructure:"workers" yaml:"workers"`
	MaxRetry  int      `mapstructure:"max_retry" yaml:"max_retry"`
}

// MySQLConfig enables durable snapshots when DSN is set.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

type HistoryConfig struct {
	MaxUndoSteps int `mapstructure:"max_undo_steps" yaml:"max_undo_steps"`
}

// Default returns the configuration of a single node relay with no external
// services.
func Default() Config {
	server := relay.DefaultConfig()
	exporter := relay.DefaultKafkaExporterOptions()
	return Config{
		Server: ServerConfig{
			HTTPAddr:       server.HTTPAddr,
			QUICAddr:       server.QUICAddr,
			MaxClients:     server.MaxClients,
			MaxMessageSize: server.MaxMessageSize,
			ReadTimeout:    server.ReadTimeout,
			WriteTimeout:   server.WriteTimeout,
			Shards:         server.Shards,
			FanOut:         server.FanOut,
		},
		Log: LogConfig{
			Level:    log.LevelInfo.String(),
			Encoding: "json",
			Output:   []string{"stderr"},
			Sampling: true,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Kafka: KafkaConfig{
			Topic:     "sheetsync.revisions",
			QueueSize: exporter.QueueSize,
			Workers:   exporter.Workers,
			MaxRetry:  exporter.MaxRetry,
		},
		History: HistoryConfig{MaxUndoSteps: localhistory.DefaultMaxSteps},
	}
}

// Load reads path, when not empty, over the defaults and applies the
// environment on top.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.quic_addr", d.Server.QUICAddr)
	v.SetDefault("server.max_clients", d.Server.MaxClients)
	v.SetDefault("server.max_message_size", d.Server.MaxMessageSize)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shards", d.Server.Shards)
	v.SetDefault("server.fan_out", d.Server.FanOut)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.sampling", d.Log.Sampling)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.queue_size", d.Kafka.QueueSize)
	v.SetDefault("kafka.workers", d.Kafka.Workers)
	v.SetDefault("kafka.max_retry", d.Kafka.MaxRetry)
	v.SetDefault("mysql.dsn", d.MySQL.DSN)
	v.SetDefault("history.max_undo_steps", d.History.MaxUndoSteps)
}

func (c Config) Validate() error {
	switch {
	case c.Server.HTTPAddr == "":
		return fmt.Errorf("%w: server.http_addr is required", ErrInvalidConfig)
	case c.Server.Shards <= 0:
		return fmt.Errorf("%w: server.shards must be positive", ErrInvalidConfig)
	case c.Log.Encoding != "json" && c.Log.Encoding != "console":
		return fmt.Errorf("%w: log.encoding must be json or console", ErrInvalidConfig)
	case c.Server.MaxMessageSize <= 0:
		return fmt.Errorf("%w: server.max_message_size must be positive", ErrInvalidConfig)
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return fmt.Errorf("%w: kafka.topic is required with kafka.brokers", ErrInvalidConfig)
	case c.History.MaxUndoSteps <= 0:
		return fmt.Errorf("%w: history.max_undo_steps must be positive", ErrInvalidConfig)
	}
	return nil
}

// Relay returns the options of the relay server.
func (c Config) Relay() relay.Config {
	return relay.Config{
		HTTPAddr:       c.Server.HTTPAddr,
		QUICAddr:       c.Server.QUICAddr,
		MaxClients:     c.Server.MaxClients,
		MaxMessageSize: c.Server.MaxMessageSize,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		Shards:         c.Server.Shards,
		FanOut:         c.Server.FanOut,
		JWTSecret:      c.Auth.JWTSecret,
	}
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() log.Level {
	return log.ParseLevel(c.Log.Level)
}

// Logging returns the options of the process logger.
func (c Config) Logging() log.Options {
	return log.Options{
		Level:       c.LogLevel(),
		Encoding:    c.Log.Encoding,
		OutputPaths: c.Log.Output,
		Sampling:    c.Log.Sampling,
	}
}

// YAML renders the effective configuration. Secrets are masked.
func (c Config) YAML() ([]byte, error) {
	masked := c
	if masked.Auth.JWTSecret != "" {
		masked.Auth.JWTSecret = "***"
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	if masked.MySQL.DSN != "" {
		masked.MySQL.DSN = "***"
	}
	return yaml.Marshal(masked)
}
