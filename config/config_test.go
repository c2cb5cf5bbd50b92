package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PLATFORM_FEE_PERCENT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "20", cfg.Business.PlatformFeePercent.String())
	assert.Equal(t, 30*time.Second, cfg.Business.CheckoutLockTTL)
	assert.Equal(t, 15*time.Second, cfg.Database.StatementTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PLATFORM_FEE_PERCENT", "12.5")
	t.Setenv("DEFAULT_CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "12.5", cfg.Business.PlatformFeePercent.String())
	assert.Equal(t, "eur", cfg.Business.DefaultCurrency)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PLATFORM_FEE_PERCENT", "twenty")
	_, err = Load()
	assert.Error(t, err)
}
