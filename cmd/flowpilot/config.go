package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all flowpilot configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	ResourceURL string `json:"resource_url"`
	Scheduler   bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(flowpilotDir(), "flowpilot.db"),
		LogLevel: "info",
	}
}

func flowpilotDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowpilot"
	}
	return filepath.Join(home, ".flowpilot")
}

func settingsPath() string {
	return filepath.Join(flowpilotDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWPILOT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWPILOT_RESOURCE_URL"); v != "" {
		cfg.ResourceURL = v
	}
	if v := os.Getenv("FLOWPILOT_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
