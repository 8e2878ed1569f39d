package config

import (
	"os"
	"strings"
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
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		// TTL of the Redis liveness marker for a running activity.
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Auth struct {
		// Secret verifies HS256 identity tokens. Empty enables query-parameter
		// identities for local development.
		Secret string `yaml:"secret"`
		Issuer string `yaml:"issuer"`
	} `yaml:"auth"`
	Admin struct {
		Emails []string `yaml:"emails"`
	} `yaml:"admin"`
	XP struct {
		// MaxAward caps a single XP award; 0 disables the cap.
		MaxAward int `yaml:"max_award"`
	} `yaml:"xp"`
	Organizations []Organization `yaml:"organizations"`
}

// Organization is a seed entry created at start-up when missing.
type Organization struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides file values with non-empty environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := getenv("ADMIN_EMAILS"); v != "" {
		cfg.Admin.Emails = splitList(v)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
