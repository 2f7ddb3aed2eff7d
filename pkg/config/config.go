// Package config loads server and client settings from the environment.
// Command line flags in cmd/ override what is loaded here.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cbodonnell/tickstream/pkg/quantize"
)

// ServerConfig controls the replication server.
type ServerConfig struct {
	UDPPort      int           `env:"TICKSTREAM_UDP_PORT"      envDefault:"8889"`
	WSPort       int           `env:"TICKSTREAM_WS_PORT"       envDefault:"0"`
	APIPort      int           `env:"TICKSTREAM_API_PORT"      envDefault:"9090"`
	TickInterval time.Duration `env:"TICKSTREAM_TICK_INTERVAL" envDefault:"50ms"`
	HistorySize  int           `env:"TICKSTREAM_HISTORY_SIZE"  envDefault:"64"`
	IdleTimeout  time.Duration `env:"TICKSTREAM_IDLE_TIMEOUT"  envDefault:"10s"`
	LogLevel     string        `env:"TICKSTREAM_LOG_LEVEL"     envDefault:"info"`
	// DatabaseURL enables frame recording. sqlite://path and postgres URLs
	// are supported.
	DatabaseURL         string `env:"DATABASE_URL"`
	SkipIdenticalScopes bool   `env:"TICKSTREAM_SKIP_IDENTICAL_SCOPES" envDefault:"true"`
	Precision           PrecisionConfig
}

// ClientConfig controls the replication client.
type ClientConfig struct {
	ServerAddr string `env:"TICKSTREAM_SERVER_ADDR" envDefault:"localhost:8889"`
	LogLevel   string `env:"TICKSTREAM_LOG_LEVEL"   envDefault:"info"`
	// InterpolationDelay is how far behind the newest frame rendering runs.
	InterpolationDelay time.Duration `env:"TICKSTREAM_INTERPOLATION_DELAY" envDefault:"100ms"`
	PingInterval       time.Duration `env:"TICKSTREAM_PING_INTERVAL"       envDefault:"1s"`
	Precision          PrecisionConfig
}

// PrecisionConfig holds the quantization settings both peers must agree on.
type PrecisionConfig struct {
	PositionSmallBits int     `env:"TICKSTREAM_POSITION_SMALL_BITS" envDefault:"8"`
	PositionLargeBits int     `env:"TICKSTREAM_POSITION_LARGE_BITS" envDefault:"14"`
	PositionFullBits  int     `env:"TICKSTREAM_POSITION_FULL_BITS"  envDefault:"20"`
	PositionRange     float64 `env:"TICKSTREAM_POSITION_RANGE"      envDefault:"1024"`
	VelocitySmallBits int     `env:"TICKSTREAM_VELOCITY_SMALL_BITS" envDefault:"6"`
	VelocityLargeBits int     `env:"TICKSTREAM_VELOCITY_LARGE_BITS" envDefault:"10"`
	VelocityFullBits  int     `env:"TICKSTREAM_VELOCITY_FULL_BITS"  envDefault:"16"`
	VelocityRange     float64 `env:"TICKSTREAM_VELOCITY_RANGE"      envDefault:"64"`
	RotationBits      int     `env:"TICKSTREAM_ROTATION_BITS"       envDefault:"12"`
}

// Position returns the validated position precision.
func (c PrecisionConfig) Position() (*quantize.Precision, error) {
	p, err := quantize.NewPrecision(c.PositionSmallBits, c.PositionLargeBits, c.PositionFullBits, c.PositionRange)
	if err != nil {
		return nil, fmt.Errorf("invalid position precision: %w", err)
	}
	return p, nil
}

// Velocity returns the validated velocity precision.
func (c PrecisionConfig) Velocity() (*quantize.Precision, error) {
	p, err := quantize.NewPrecision(c.VelocitySmallBits, c.VelocityLargeBits, c.VelocityFullBits, c.VelocityRange)
	if err != nil {
		return nil, fmt.Errorf("invalid velocity precision: %w", err)
	}
	return p, nil
}

// Validate checks every precision setting.
func (c PrecisionConfig) Validate() error {
	if _, err := c.Position(); err != nil {
		return err
	}
	if _, err := c.Velocity(); err != nil {
		return err
	}
	if c.RotationBits < 1 || c.RotationBits > 32 {
		return fmt.Errorf("invalid rotation bits %d", c.RotationBits)
	}
	return nil
}

// LoadServerConfig reads a ServerConfig from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	return c.Precision.Validate()
}

// LoadClientConfig reads a ClientConfig from the environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the client settings.
func (c *ClientConfig) Validate() error {
	if c.InterpolationDelay < 0 {
		return fmt.Errorf("interpolation delay must not be negative, got %s", c.InterpolationDelay)
	}
	return c.Precision.Validate()
}
