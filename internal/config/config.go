package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultMediaDir      = "./media"
	DefaultMediaURL      = "/media"
	DefaultInviteTimeout = 30 * time.Second
	DefaultKafkaTopic    = "chat-messages"
	DefaultPresenceKey   = "callhub:online-users"
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string

	// MediaDir is where uploaded attachments are stored, MediaURL the
	// public prefix they are served under.
	MediaDir string
	MediaURL string

	InviteTimeout time.Duration

	// optional sinks, disabled when empty
	RedisAddr    string
	PresenceKey  string
	KafkaBrokers []string
	KafkaTopic   string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret decodes to an empty key")
	}

	return key, nil
}

// NewConfig validates the required settings and fills the optional ones with
// defaults. An empty base64Secret disables websocket authentication.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	var signingKey []byte
	if base64Secret != "" {
		key, err := decodeSigningSecret(base64Secret)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		signingKey = key
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		MediaDir:       DefaultMediaDir,
		MediaURL:       DefaultMediaURL,
		InviteTimeout:  DefaultInviteTimeout,
		PresenceKey:    DefaultPresenceKey,
		KafkaTopic:     DefaultKafkaTopic,
	}, nil
}

// AuthEnabled reports whether websocket connections must present a token.
func (c *Config) AuthEnabled() bool {
	return len(c.SigningKey) > 0
}

// Validate checks the settings that may be overridden after NewConfig.
func (c *Config) Validate() error {
	if c.MediaDir == "" {
		return fmt.Errorf("media directory cannot be empty")
	}
	if c.InviteTimeout <= 0 {
		return fmt.Errorf("invite timeout must be positive, got %s", c.InviteTimeout)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}
	if c.RedisAddr != "" && c.PresenceKey == "" {
		return fmt.Errorf("presence key cannot be empty when redis is set")
	}

	return nil
}
