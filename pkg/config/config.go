// Package config holds the beacon daemon configuration: YAML on disk,
// struct-tag defaults, and logger construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/beacond/advertiser"
	"github.com/srg/beacond/internal/beacon"
)

// HeartbeatConfig configures the proof-of-life blinker.
type HeartbeatConfig struct {
	// LED names a /sys/class/leds entry. Empty disables the heartbeat.
	LED    string        `yaml:"led"`
	Period time.Duration `yaml:"period" default:"2s"`
	OnTime time.Duration `yaml:"on_time" default:"100ms"`
}

// Config holds application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// DeviceID identifies this beacon inside the sealed payload.
	DeviceID uint32 `yaml:"device_id" default:"1"`
	// KeyFile is the base64-encoded 32-byte master key location.
	KeyFile string `yaml:"key_file" default:"/etc/beacond/master.key"`

	// RefreshPeriod is how often the payload is regenerated.
	RefreshPeriod time.Duration `yaml:"refresh_period" default:"300s"`

	// Advertising interval bounds; the radio picks a randomized interval
	// between them.
	AdvIntervalMin time.Duration `yaml:"adv_interval_min" default:"2s"`
	AdvIntervalMax time.Duration `yaml:"adv_interval_max" default:"2500ms"`

	// ServiceUUID is the 16-bit service identifier, hex-encoded.
	ServiceUUID string `yaml:"service_uuid" default:"FC96"`
	// RandomAddress advertises from a non-resolvable private address.
	RandomAddress bool `yaml:"random_address" default:"true"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate checks every field the daemon depends on.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &beacon.ConfigError{Field: "log_level", Msg: c.LogLevel}
	}
	if c.RefreshPeriod < beacon.MinRefreshPeriod {
		return &beacon.ConfigError{
			Field: "refresh_period",
			Msg:   "must be at least " + beacon.MinRefreshPeriod.String(),
		}
	}
	if _, err := c.UUID16(); err != nil {
		return &beacon.ConfigError{Field: "service_uuid", Msg: err.Error()}
	}
	params, err := c.AdvertiserParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return &beacon.ConfigError{Field: "adv_interval", Msg: err.Error()}
	}
	if c.Heartbeat.LED != "" {
		if c.Heartbeat.Period <= 0 || c.Heartbeat.OnTime <= 0 || c.Heartbeat.OnTime >= c.Heartbeat.Period {
			return &beacon.ConfigError{Field: "heartbeat", Msg: "on_time must be within (0, period)"}
		}
	}
	return nil
}

// UUID16 parses the hex service UUID.
func (c *Config) UUID16() (uint16, error) {
	v, err := strconv.ParseUint(c.ServiceUUID, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("not a 16-bit hex UUID: %q", c.ServiceUUID)
	}
	return uint16(v), nil
}

// AdvertiserParams builds the advertising parameters from the config.
func (c *Config) AdvertiserParams() (advertiser.Params, error) {
	uuid, err := c.UUID16()
	if err != nil {
		return advertiser.Params{}, &beacon.ConfigError{Field: "service_uuid", Msg: err.Error()}
	}
	return advertiser.Params{
		IntervalMin:   c.AdvIntervalMin,
		IntervalMax:   c.AdvIntervalMax,
		ServiceUUID:   uuid,
		RandomAddress: c.RandomAddress,
	}, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
