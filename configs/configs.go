package configs

import (
	"fmt"
	"time"
)

var (
	HKDFInfo        = []byte("signal-sessions")
	HKDFInfoRootKey = []byte("RootKey")
	HKDFInfoMessage = []byte("MessageKey")
	WebSocketPath   = "/ws"

	// Redis keys

	ServerMessageQueueKey = "server:messages:%s"

	// Pool defaults
	DefaultPoolSize    = 100
	DefaultMinPoolSize = 20
	DefaultDeviceID    = uint32(1)

	// MaxPreKeyID bounds randomly drawn pre-key ids (24 bits).
	MaxPreKeyID = uint32(0xFFFFFF)

	ShutdownTimeout = 10 * time.Second
)

const (
	IDPolicyRandom     = "random"
	IDPolicySequential = "sequential"
)

// Config is the process configuration of the server binary.
type Config struct {
	ListenAddr  string `mapstructure:"listen"`
	DeviceID    uint32 `mapstructure:"device-id"`
	PoolEnabled bool   `mapstructure:"pool"`
	PoolSize    int    `mapstructure:"pool-size"`
	MinPoolSize int    `mapstructure:"min-pool-size"`
	IDPolicy    string `mapstructure:"id-policy"`
	RedisAddr   string `mapstructure:"redis"`
	LogLevel    string `mapstructure:"log-level"`
	LogFormat   string `mapstructure:"log-format"`
}

func Default() Config {
	return Config{
		ListenAddr:  ":3000",
		DeviceID:    DefaultDeviceID,
		PoolEnabled: true,
		PoolSize:    DefaultPoolSize,
		MinPoolSize: DefaultMinPoolSize,
		IDPolicy:    IDPolicyRandom,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

func (c Config) Validate() error {
	switch {
	case c.DeviceID == 0:
		return fmt.Errorf("device-id must be positive")
	case c.PoolSize < 1:
		return fmt.Errorf("pool-size must be at least 1, got %d", c.PoolSize)
	case c.MinPoolSize < 0 || c.MinPoolSize > c.PoolSize:
		return fmt.Errorf("min-pool-size must be within [0, %d], got %d", c.PoolSize, c.MinPoolSize)
	case c.IDPolicy != IDPolicyRandom && c.IDPolicy != IDPolicySequential:
		return fmt.Errorf("unknown id-policy %q", c.IDPolicy)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("unknown log-format %q", c.LogFormat)
	}
	return nil
}
