package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port   string `env:"PORT" envDefault:"3000"`
	Origin string `env:"ORIGIN" envDefault:"http://localhost:8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDb       int    `env:"REDIS_DB" envDefault:"0"`

	DatabasePath   string `env:"DATABASE_PATH" envDefault:"projects.db"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	PublicUrl      string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	TokenSecret string `env:"TOKEN_SECRET" envDefault:"change-me"`

	ChatHistoryLimit int           `env:"CHAT_HISTORY_LIMIT" envDefault:"500"`
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"1s"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE" envDefault:"64"`
}

func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

func (c *Config) RoomSettings() *RoomSettings {
	settings := DefaultRoomSettings()
	settings.ChatHistoryLimit = c.ChatHistoryLimit
	settings.FlushInterval = c.FlushInterval
	return settings
}
