package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, config.ChatHistoryLimit)
	assert.Equal(t, time.Second, config.FlushInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("FLUSH_INTERVAL", "250ms")
	t.Setenv("CHAT_HISTORY_LIMIT", "0")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "4000", config.Port)
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 250*time.Millisecond, config.FlushInterval)

	settings := config.RoomSettings()
	assert.Equal(t, 0, settings.ChatHistoryLimit)
	assert.Equal(t, 250*time.Millisecond, settings.FlushInterval)
}
