package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Timer struct {
		SnapshotPath    string `yaml:"snapshot_path"`
		SaveIntervalSec int    `yaml:"save_interval_sec"`
	} `yaml:"timer"`
	Twitch struct {
		Enabled bool   `yaml:"enabled"`
		Channel string `yaml:"channel"`
		Nick    string `yaml:"nick"`
		Token   string `yaml:"token"`
	} `yaml:"twitch"`
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Timer.SnapshotPath = "subtimer.db"
	cfg.Timer.SaveIntervalSec = 30
	cfg.Log.Level = "info"
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env-only configuration is fine.
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets environment variables override the file.
func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Timer.SnapshotPath = getEnv("SNAPSHOT_PATH", c.Timer.SnapshotPath)
	c.Timer.SaveIntervalSec = getEnvAsInt("SAVE_INTERVAL_SEC", c.Timer.SaveIntervalSec)
	c.Twitch.Channel = getEnv("TWITCH_CHANNEL", c.Twitch.Channel)
	c.Twitch.Nick = getEnv("TWITCH_NICK", c.Twitch.Nick)
	c.Twitch.Token = getEnv("TWITCH_TOKEN", c.Twitch.Token)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if c.Twitch.Channel != "" {
		c.Twitch.Enabled = true
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
