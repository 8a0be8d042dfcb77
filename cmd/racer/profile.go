package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// profile is the optional racer.yaml in the user config dir. Flags and
// env still win; the profile only fills values the user left at their
// defaults.
type profile struct {
	Server   string `yaml:"server"`
	NATSURL  string `yaml:"nats_url"`
	Nickname string `yaml:"nickname"`
	Mode     string `yaml:"mode"`
	Duration string `yaml:"duration"`
	Words    int    `yaml:"words"`
}

func profilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "racer", "racer.yaml"), nil
}

func loadProfile(cfg *config) error {
	path, err := profilePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if cfg.nickname == "" && p.Nickname != "" {
		cfg.nickname = p.Nickname
	}
	if cfg.serverURL == "http://localhost:8080" && p.Server != "" {
		cfg.serverURL = p.Server
	}
	if cfg.natsURL == "nats://localhost:4222" && p.NATSURL != "" {
		cfg.natsURL = p.NATSURL
	}
	if p.Mode != "" && cfg.mode == "words" {
		cfg.mode = p.Mode
	}
	if p.Duration != "" && cfg.duration == 60*time.Second {
		d, err := time.ParseDuration(p.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration in profile %s: %w", path, err)
		}
		cfg.duration = d
	}
	if p.Words > 0 && cfg.wordCount == 50 {
		cfg.wordCount = p.Words
	}
	return nil
}
