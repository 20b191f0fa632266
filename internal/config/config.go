package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/wardlink/signover/internal/transfer"
	"github.com/wardlink/signover/internal/transport"
)

// Config is the full signoverctl configuration file.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Link   LinkConfig   `toml:"link"`
	Server ServerConfig `toml:"server"`
}

type EngineConfig struct {
	ServiceID          string `toml:"service_id"`
	ParkTimeout        string `toml:"park_timeout"`
	EventBuffer        int    `toml:"event_buffer"`
	SendAcks           bool   `toml:"send_acks"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MaxReadAttempts    int    `toml:"max_read_attempts"`
}

type LinkConfig struct {
	MaxPayloadBytes int    `toml:"max_payload_bytes"`
	NotifyBuffer    int    `toml:"notify_buffer"`
	AutoDrain       bool   `toml:"auto_drain"`
	DrainInterval   string `toml:"drain_interval"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

func Default() Config {
	return Config{
		Engine: EngineConfig{
			ServiceID:   "wardlink.signover",
			ParkTimeout: "45s",
		},
		Link: LinkConfig{
			AutoDrain: true,
		},
		Server: ServerConfig{
			Addr: ":9400",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Engine.ServiceID) == "" {
		return fmt.Errorf("engine config missing service_id")
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	if cfg.Engine.ParkTimeout != "" {
		if _, err := time.ParseDuration(cfg.Engine.ParkTimeout); err != nil {
			return fmt.Errorf("engine config park_timeout invalid: %w", err)
		}
	}
	if cfg.Link.DrainInterval != "" {
		if _, err := time.ParseDuration(cfg.Link.DrainInterval); err != nil {
			return fmt.Errorf("link config drain_interval invalid: %w", err)
		}
	}
	if cfg.Link.MaxPayloadBytes < 0 {
		return fmt.Errorf("link config max_payload_bytes must be >= 0")
	}
	return nil
}

// TransferConfig converts the engine section into an engine config.
func (c EngineConfig) TransferConfig() transfer.Config {
	cfg := transfer.DefaultConfig()
	if strings.TrimSpace(c.ServiceID) != "" {
		cfg.ServiceID = c.ServiceID
	}
	if c.ParkTimeout != "" {
		if d, err := time.ParseDuration(c.ParkTimeout); err == nil {
			cfg.ParkTimeout = d
		}
	}
	if c.EventBuffer > 0 {
		cfg.EventBuffer = c.EventBuffer
	}
	cfg.SendAcks = c.SendAcks
	if c.MaxConnectAttempts > 0 {
		cfg.MaxConnectAttempts = c.MaxConnectAttempts
	}
	if c.MaxReadAttempts > 0 {
		cfg.MaxReadAttempts = c.MaxReadAttempts
	}
	return cfg
}

// LoopbackConfig converts the link section into a loopback link config.
func (c LinkConfig) LoopbackConfig() transport.LoopbackConfig {
	cfg := transport.DefaultLoopbackConfig()
	if c.MaxPayloadBytes > 0 {
		cfg.MaxPayloadBytes = c.MaxPayloadBytes
	}
	if c.NotifyBuffer > 0 {
		cfg.NotifyBuffer = c.NotifyBuffer
	}
	cfg.AutoDrain = c.AutoDrain
	if c.DrainInterval != "" {
		if d, err := time.ParseDuration(c.DrainInterval); err == nil {
			cfg.DrainInterval = d
		}
	}
	return cfg
}
