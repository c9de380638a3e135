package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:5173"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		auth bool
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			auth: true,
			err:  false,
		},
		{
			name: "empty signing key disables auth",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			auth: false,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "invalid signing key",
			addr: addr,
			dsn:  dsn,
			key:  "not base64!",
			orig: orig,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, tc.auth, config.AuthEnabled(), "expected auth enabled to be %v", tc.auth)
			assert.Equal(t, DefaultInviteTimeout, config.InviteTimeout, "expected default invite timeout")
			assert.Equal(t, DefaultMediaDir, config.MediaDir, "expected default media dir")
			assert.NoError(t, config.Validate(), "expected defaults to validate")
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(c *Config)
		err    bool
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name:   "empty media dir",
			modify: func(c *Config) { c.MediaDir = "" },
			err:    true,
		},
		{
			name:   "zero invite timeout",
			modify: func(c *Config) { c.InviteTimeout = 0 },
			err:    true,
		},
		{
			name:   "negative invite timeout",
			modify: func(c *Config) { c.InviteTimeout = -time.Second },
			err:    true,
		},
		{
			name: "kafka brokers without topic",
			modify: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaTopic = ""
			},
			err: true,
		},
		{
			name: "redis without presence key",
			modify: func(c *Config) {
				c.RedisAddr = "localhost:6379"
				c.PresenceKey = ""
			},
			err: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig("localhost:8000", "dsn", "", nil)
			assert.NoError(t, err)

			tc.modify(c)
			if tc.err {
				assert.Error(t, c.Validate(), "expected validation error")
			} else {
				assert.NoError(t, c.Validate(), "expected no validation error")
			}
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}
