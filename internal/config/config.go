package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL          string `yaml:"ttl"`
		TimeLimit    string `yaml:"time_limit"`
		QuestionsDir string `yaml:"questions_dir"`
	} `yaml:"quiz"`
	Remote struct {
		// Kind selects the blob store: "jsonbin" (default) or "postgres".
		Kind     string `yaml:"kind"`
		URL      string `yaml:"url"`
		BinID    string `yaml:"bin_id"`
		APIKey   string `yaml:"api_key"`
		BinName  string `yaml:"bin_name"`
		SchoolID string `yaml:"school_id"`
		Timeout  string `yaml:"timeout"`
		Offline  bool   `yaml:"offline"`
	} `yaml:"remote"`
	Sync struct {
		Interval      string `yaml:"interval"`
		ProbeInterval string `yaml:"probe_interval"`
	} `yaml:"sync"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if key := os.Getenv("REMOTE_API_KEY"); key != "" {
		cfg.Remote.APIKey = key
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
