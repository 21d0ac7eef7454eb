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
	Log struct {
		Mode string `yaml:"mode"` // development or production
		File string `yaml:"file"` // rotated with lumberjack when set
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Engine struct {
		DailyPassThreshold float64 `yaml:"daily_pass_threshold"`
		GrandtestCooldown  string  `yaml:"grandtest_cooldown"`
		EssayMinLength     int     `yaml:"essay_min_length"`
		DefaultTestID      string  `yaml:"default_test_id"` // used when a start request names no test
	} `yaml:"engine"`
	Verify struct {
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"verify"`
}

// Load reads YAML config from path. A missing file yields the defaults so the
// service can start in memory mode.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Engine.DailyPassThreshold <= 0 {
		c.Engine.DailyPassThreshold = 90
	}
	if c.Engine.EssayMinLength <= 0 {
		c.Engine.EssayMinLength = 10
	}
	if c.Verify.RatePerSecond <= 0 {
		c.Verify.RatePerSecond = 5
	}
	if c.Verify.Burst <= 0 {
		c.Verify.Burst = 10
	}
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
