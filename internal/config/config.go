package config

import "time"

// Config holds client and relay configuration values.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Client   Client `mapstructure:"client" yaml:"client"`
	Relay    Relay  `mapstructure:"relay" yaml:"relay"`
}

// Client configures the terminal chat client.
type Client struct {
	ServerURL                string        `mapstructure:"server_url" yaml:"server_url"`
	WSPath                   string        `mapstructure:"ws_path" yaml:"ws_path"`
	ConnectTimeout           time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout           time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
	ReconnectAttempts        uint          `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectInitialInterval time.Duration `mapstructure:"reconnect_initial_interval" yaml:"reconnect_initial_interval"`
	ReconnectMaxInterval     time.Duration `mapstructure:"reconnect_max_interval" yaml:"reconnect_max_interval"`
	HistorySize              int           `mapstructure:"history_size" yaml:"history_size"`
}

// Relay configures the development relay server.
type Relay struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second" yaml:"messages_per_second"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Client: Client{
			ServerURL:                "http://localhost:8080",
			WSPath:                   "/chat",
			ConnectTimeout:           10 * time.Second,
			PublishTimeout:           5 * time.Second,
			ReconnectAttempts:        5,
			ReconnectInitialInterval: 250 * time.Millisecond,
			ReconnectMaxInterval:     5 * time.Second,
			HistorySize:              50,
		},
		Relay: Relay{
			Addr:              ":8080",
			DatabasePath:      "wirechat.db",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			MessagesPerSecond: 5,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Client.ServerURL != "" {
		c.Client.ServerURL = other.Client.ServerURL
	}
	if other.Client.WSPath != "" {
		c.Client.WSPath = other.Client.WSPath
	}
	if other.Client.HistorySize != 0 {
		c.Client.HistorySize = other.Client.HistorySize
	}
	if other.Relay.Addr != "" {
		c.Relay.Addr = other.Relay.Addr
	}
	if other.Relay.DatabasePath != "" {
		c.Relay.DatabasePath = other.Relay.DatabasePath
	}
}
