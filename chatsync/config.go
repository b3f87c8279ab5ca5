package chatsync

import (
	"time"

	"github.com/Netflix/go-env"
)

// Config controls how the SDK connects.
type Config struct {
	URL         string `env:"CHATSYNC_URL"`
	DisplayName string `env:"CHATSYNC_DISPLAY_NAME"`

	HandshakeTimeout time.Duration `env:"CHATSYNC_HANDSHAKE_TIMEOUT,default=10s"`
	ReadTimeout      time.Duration `env:"CHATSYNC_READ_TIMEOUT,default=30s"`
	WriteTimeout     time.Duration `env:"CHATSYNC_WRITE_TIMEOUT,default=10s"`

	// AutoReconnect re-dials after an unexpected disconnect with a capped
	// exponential delay. Set MaxReconnectTries to 0 for unlimited attempts.
	AutoReconnect     bool          `env:"CHATSYNC_AUTO_RECONNECT,default=false"`
	ReconnectInterval time.Duration `env:"CHATSYNC_RECONNECT_INTERVAL,default=2s"`
	MaxReconnectDelay time.Duration `env:"CHATSYNC_MAX_RECONNECT_DELAY,default=30s"`
	MaxReconnectTries int           `env:"CHATSYNC_MAX_RECONNECT_TRIES,default=0"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectInterval: 2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// ConfigFromEnv loads configuration from CHATSYNC_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, WrapError(ErrorInvalidConfig, "load config from environment", err)
	}
	return cfg, nil
}
