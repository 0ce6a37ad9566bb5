package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/mill")
	t.Setenv("DATABASE_MAX_TX_RETRIES", "5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/mill", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Database.MaxTxRetries)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 15*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{URL: "postgres://x", MaxConns: 1, MaxTxRetries: -1}}
	assert.Error(t, cfg.Validate())

	cfg.Database.MaxTxRetries = 0
	assert.NoError(t, cfg.Validate())
}

func TestSplitBrokers(t *testing.T) {
	assert.Nil(t, splitBrokers(nil))
	assert.Equal(t, []string{"a", "b", "c"}, splitBrokers([]string{"a,b", " c "}))
}
