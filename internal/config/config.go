package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BackendBaseURL string
	HTTPAddr       string
	LogLevel       string
	StorePath      string
	RedisDSN       string // optional; empty disables the response cache
	CORSOrigins    []string

	DefaultProfilePicture string

	// retry polling
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollMaxAttempts int
}

func Load() (Config, error) {
	cfg := Config{
		BackendBaseURL:        getenvDefault("BACKEND_BASE_URL", "https://triviaa-backend.onrender.com"),
		HTTPAddr:              getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:              getenvDefault("LOG_LEVEL", "info"),
		StorePath:             getenvDefault("STORE_PATH", "var/companion.db"),
		RedisDSN:              os.Getenv("REDIS_DSN"),
		DefaultProfilePicture: getenvDefault("DEFAULT_PROFILE_PICTURE", ""),
		PollInterval:          3 * time.Second,
		PollMaxInterval:       30 * time.Second,
		PollMaxAttempts:       10,
	}

	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return Config{}, errors.New("missing BACKEND_BASE_URL")
	}
	cfg.BackendBaseURL = strings.TrimRight(cfg.BackendBaseURL, "/")

	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return Config{}, errors.New("POLL_INTERVAL_MS must be a positive integer")
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("POLL_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.New("POLL_MAX_ATTEMPTS must be a positive integer")
		}
		cfg.PollMaxAttempts = n
	}

	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
