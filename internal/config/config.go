package config

import (
	"time"

	"github.com/vovakirdan/chatcore-server/internal/store"
)

// Config holds server configuration values.
type Config struct {
	Addr               string              `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration       `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration       `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath       string              `mapstructure:"database_path" yaml:"database_path"`
	LogLevel           string              `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string              `mapstructure:"log_format" yaml:"log_format"`
	HistoryLimit       int                 `mapstructure:"history_limit" yaml:"history_limit"`
	MaxMessageBytes    int64               `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int                 `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ClientBuffer       int                 `mapstructure:"client_buffer" yaml:"client_buffer"`
	DefaultChannels    []store.ChannelSeed `mapstructure:"default_channels" yaml:"default_channels"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "chat_app.db",
		LogLevel:           "info",
		LogFormat:          "console",
		HistoryLimit:       50,
		MaxMessageBytes:    64 << 10,
		RateLimitPerMinute: 600,
		ClientBuffer:       64,
		DefaultChannels:    store.DefaultChannels(),
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if len(other.DefaultChannels) > 0 {
		c.DefaultChannels = other.DefaultChannels
	}
}
