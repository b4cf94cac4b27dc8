// Package config loads service settings from the environment (and an
// optional .env file) with defaults suited to local development.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string
	GatewayAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StoreDriver    string
	ScyllaHosts    []string
	ScyllaKeyspace string

	KafkaBrokers     []string
	KafkaTopic       string
	KafkaCompression string

	JWTSecret string
	NodeID    int64

	MaxBatchSize  int
	MaxPending    int
	BatchInterval time.Duration
	FlushInterval time.Duration
	FlushMargin   time.Duration
	MaxDirtyAge   time.Duration
	RunWorkers    bool

	LogLevel string
	LogFile  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("GATEWAY_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STORE_DRIVER", "scylla")
	v.SetDefault("SCYLLA_HOSTS", "localhost:9042")
	v.SetDefault("SCYLLA_KEYSPACE", "chat")
	v.SetDefault("KAFKA_BROKERS", "localhost:19092")
	v.SetDefault("KAFKA_TOPIC", "chat-events")
	v.SetDefault("KAFKA_COMPRESSION", "snappy")
	v.SetDefault("JWT_SECRET", "my_secret_key")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("MAX_BATCH_SIZE", 50)
	v.SetDefault("MAX_PENDING", 500)
	v.SetDefault("BATCH_INTERVAL", "5s")
	v.SetDefault("FLUSH_INTERVAL", "30s")
	v.SetDefault("FLUSH_MARGIN", "5m")
	v.SetDefault("MAX_DIRTY_AGE", "5m")
	v.SetDefault("RUN_WORKERS", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
}

// Load reads .env if present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper builds a Config from v, bound to the environment.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		GatewayAddr:      v.GetString("GATEWAY_ADDR"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		StoreDriver:      v.GetString("STORE_DRIVER"),
		ScyllaHosts:      splitList(v.GetString("SCYLLA_HOSTS")),
		ScyllaKeyspace:   v.GetString("SCYLLA_KEYSPACE"),
		KafkaBrokers:     splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:       v.GetString("KAFKA_TOPIC"),
		KafkaCompression: v.GetString("KAFKA_COMPRESSION"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		NodeID:           v.GetInt64("NODE_ID"),
		MaxBatchSize:     v.GetInt("MAX_BATCH_SIZE"),
		MaxPending:       v.GetInt("MAX_PENDING"),
		BatchInterval:    v.GetDuration("BATCH_INTERVAL"),
		FlushInterval:    v.GetDuration("FLUSH_INTERVAL"),
		FlushMargin:      v.GetDuration("FLUSH_MARGIN"),
		MaxDirtyAge:      v.GetDuration("MAX_DIRTY_AGE"),
		RunWorkers:       v.GetBool("RUN_WORKERS"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFile:          v.GetString("LOG_FILE"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
