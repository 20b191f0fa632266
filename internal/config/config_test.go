package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardlink/signover/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signover.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[engine]
service_id = "ward.test"
park_timeout = "10s"
send_acks = true
max_connect_attempts = 7

[link]
max_payload_bytes = 48
notify_buffer = 8

[server]
addr = ":9500"
cors_origins = ["http://localhost:3000"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Engine.ServiceID != "ward.test" {
		t.Fatalf("unexpected service id: %q", cfg.Engine.ServiceID)
	}
	if cfg.Engine.ParkTimeout != "10s" {
		t.Fatalf("unexpected park timeout: %q", cfg.Engine.ParkTimeout)
	}
	if !cfg.Engine.SendAcks {
		t.Fatalf("expected send_acks enabled")
	}
	if cfg.Link.MaxPayloadBytes != 48 || cfg.Link.NotifyBuffer != 8 {
		t.Fatalf("unexpected link config: %+v", cfg.Link)
	}
	if cfg.Server.Addr != ":9500" || len(cfg.Server.CorsOrigins) != 1 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Engine.ParkTimeout = "abc"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected park_timeout error")
	}
	cfg = Default()
	cfg.Link.DrainInterval = "xyz"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected drain_interval error")
	}
}

func TestValidateRequiresServiceIDAndAddr(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Engine.ServiceID = " "
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected service_id error")
	}
	cfg = Default()
	cfg.Server.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected addr error")
	}
}

func TestTransferConfigConversion(t *testing.T) {
	testlog.Start(t)
	ec := EngineConfig{
		ServiceID:          "ward.test",
		ParkTimeout:        "30s",
		EventBuffer:        16,
		SendAcks:           true,
		MaxConnectAttempts: 9,
		MaxReadAttempts:    4,
	}
	tc := ec.TransferConfig()
	if tc.ServiceID != "ward.test" {
		t.Fatalf("unexpected service id: %q", tc.ServiceID)
	}
	if tc.ParkTimeout != 30*time.Second {
		t.Fatalf("unexpected park timeout: %v", tc.ParkTimeout)
	}
	if tc.EventBuffer != 16 || !tc.SendAcks || tc.MaxConnectAttempts != 9 || tc.MaxReadAttempts != 4 {
		t.Fatalf("unexpected engine config: %+v", tc)
	}

	// Empty sections fall back to engine defaults.
	tc = EngineConfig{}.TransferConfig()
	if tc.ServiceID == "" || tc.ParkTimeout != 45*time.Second {
		t.Fatalf("defaults not applied: %+v", tc)
	}
}

func TestLoopbackConfigConversion(t *testing.T) {
	testlog.Start(t)
	lc := LinkConfig{
		MaxPayloadBytes: 32,
		NotifyBuffer:    6,
		AutoDrain:       true,
		DrainInterval:   "5ms",
	}
	cfg := lc.LoopbackConfig()
	if cfg.MaxPayloadBytes != 32 || cfg.NotifyBuffer != 6 || !cfg.AutoDrain {
		t.Fatalf("unexpected loopback config: %+v", cfg)
	}
	if cfg.DrainInterval != 5*time.Millisecond {
		t.Fatalf("unexpected drain interval: %v", cfg.DrainInterval)
	}
}
