package transport

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestServerConfig_Normalize(t *testing.T) {
	cfg := &ServerConfig{Addr: "127.0.0.1:0", MaxConnectionCount: 0, MaxBufferSize: 10}
	cfg.Normalize()

	assert.Equal(t, "tcp", cfg.Network)
	assert.Equal(t, 1, cfg.MaxConnectionCount)
	assert.Equal(t, 128, cfg.MaxBufferSize)
	assert.Equal(t, 1, cfg.ListenBacklog)

	def := DefaultServerConfig()
	assert.Equal(t, 1111, def.MaxConnectionCount)
	assert.Equal(t, 2048, def.MaxBufferSize)
	assert.Equal(t, 111, def.ListenBacklog)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*ServerConfig)
		wantErr error
	}{
		{"default", func(*ServerConfig) {}, nil},
		{"bad network", func(c *ServerConfig) { c.Network = "udp" }, ErrInvalidConfig},
		{"bad addr", func(c *ServerConfig) { c.Addr = "nope" }, ErrInvalidAddr},
		{"zero connections", func(c *ServerConfig) { c.MaxConnectionCount = 0 }, ErrInvalidConfig},
		{"small buffer", func(c *ServerConfig) { c.MaxBufferSize = 64 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	var nilCfg *ServerConfig
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Error(t, cfg.Validate(), "addr is required")

	cfg.Addr = "127.0.0.1:80"
	assert.NoError(t, cfg.Validate())

	cfg.DialTimeout = 0
	assert.NoError(t, cfg.Validate(), "zero timeout means unbounded")

	cfg.DialTimeout = -time.Second
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}
