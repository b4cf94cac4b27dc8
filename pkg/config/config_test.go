package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := FromViper(viper.New())

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"localhost:9042"}, cfg.ScyllaHosts)
	assert.Equal(t, 50, cfg.MaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchInterval)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.True(t, cfg.RunWorkers)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MAX_BATCH_SIZE", "10")
	t.Setenv("FLUSH_INTERVAL", "2s")
	t.Setenv("RUN_WORKERS", "false")

	cfg := FromViper(viper.New())

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10, cfg.MaxBatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.False(t, cfg.RunWorkers)
}
