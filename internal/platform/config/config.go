package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL" default:"http://localhost:5000"`
	Port      string `env:"PORT" default:"5000"`
	SecretKey string `env:"SECRET_KEY" default:"secret!"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// SiteName is set by the hosting platform; its presence marks a hosted deployment.
	SiteName string `env:"WEBSITE_SITE_NAME"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionsPerSecond    float64 `env:"CONNECTIONS_PER_SECOND" default:"5"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"10"`

	ChatRatePerSecond float64 `env:"CHAT_RATE_PER_SECOND" default:"5"`
	ChatBurst         int     `env:"CHAT_BURST" default:"10"`
	ChatMaxLength     int     `env:"CHAT_MAX_LENGTH" default:"500"`

	VideoFeedInterval time.Duration `env:"VIDEO_FEED_INTERVAL" default:"1s"`

	RTMPCommand string `env:"RTMP_COMMAND" default:"node rtmp_server.js"`
	RTMPAddr    string `env:"RTMP_ADDR" default:"127.0.0.1:1935"`
	HLSPort     int    `env:"HLS_PORT" default:"8000"`
	ICEServers  string `env:"ICE_SERVERS" default:"stun:stun.l.google.com:19302"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Hosted reports whether the process runs on the hosting platform rather than locally.
func (c *Config) Hosted() bool {
	return c.SiteName != ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// ICEServerURLs splits ICE_SERVERS into individual URLs, skipping blanks.
func (c *Config) ICEServerURLs() []string {
	var urls []string
	for _, raw := range strings.Split(c.ICEServers, ",") {
		if s := strings.TrimSpace(raw); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

// RTMPArgs splits RTMP_COMMAND into program and arguments.
func (c *Config) RTMPArgs() []string {
	return strings.Fields(c.RTMPCommand)
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.MaxWebSocketConnections <= 0 || cfg.MaxConnectionsPerIP <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.ConnectionsPerSecond <= 0 || cfg.ConnectionBurst <= 0 {
		return errors.New("CONNECTIONS_PER_SECOND and CONNECTION_BURST must be positive")
	}
	if cfg.ChatRatePerSecond <= 0 || cfg.ChatBurst <= 0 {
		return errors.New("CHAT_RATE_PER_SECOND and CHAT_BURST must be positive")
	}
	if cfg.ChatMaxLength <= 0 {
		return errors.New("CHAT_MAX_LENGTH must be positive")
	}
	if cfg.VideoFeedInterval <= 0 {
		return errors.New("VIDEO_FEED_INTERVAL must be positive")
	}
	if cfg.HLSPort <= 0 || cfg.HLSPort > 65535 {
		return fmt.Errorf("HLS_PORT out of range: %d", cfg.HLSPort)
	}

	for _, u := range cfg.ICEServerURLs() {
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return fmt.Errorf("ICE_SERVERS entry %q has no scheme", u)
		}
		switch scheme {
		case "stun", "stuns", "turn", "turns":
		default:
			return fmt.Errorf("ICE_SERVERS entry %q has unsupported scheme %q", u, scheme)
		}
	}

	if _, err := url.Parse(cfg.AppURL); err != nil {
		return fmt.Errorf("APP_URL is invalid: %w", err)
	}

	return nil
}
