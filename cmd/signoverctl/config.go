package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// runConfig holds demo-run settings from the [run] section, layered over
// defaults only where the file actually defines a key.
type runConfig struct {
	SenderName  string
	PayloadFile string
}

type runFileConfig struct {
	Run struct {
		SenderName  string `toml:"sender_name"`
		PayloadFile string `toml:"payload_file"`
	} `toml:"run"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		SenderName: "Night Shift",
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw runFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load run config: %w", err)
	}

	if meta.IsDefined("run", "sender_name") {
		name := strings.TrimSpace(raw.Run.SenderName)
		if name != "" {
			cfg.SenderName = name
		}
	}
	if meta.IsDefined("run", "payload_file") {
		cfg.PayloadFile = strings.TrimSpace(raw.Run.PayloadFile)
	}

	return cfg, nil
}
