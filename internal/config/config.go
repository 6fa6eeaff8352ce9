package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roadguard/internal/models"
)

// fileConfig mirrors the optional YAML config file. Empty fields leave the
// defaults untouched.
type fileConfig struct {
	Port            string                `yaml:"port"`
	DBPath          string                `yaml:"db_path"`
	APIURL          string                `yaml:"api_url"`
	PollInterval    string                `yaml:"poll_interval"`
	SessionTTL      string                `yaml:"session_ttl"`
	SessionSecret   string                `yaml:"session_secret"`
	DisplayTimezone string                `yaml:"display_timezone"`
	NotifyURLs      []string              `yaml:"notify_urls"`
	NotifyTargets   []models.NotifyTarget `yaml:"notify_targets"`
	AuthRateLimit   int                   `yaml:"auth_rate_limit"`
	SecureCookies   *bool                 `yaml:"secure_cookies"`
}

// Defaults returns the built-in configuration
func Defaults() models.Config {
	return models.Config{
		Port:            "9080",
		DBPath:          "roadguard.db",
		APIURL:          "http://localhost:8000",
		PollInterval:    10 * time.Second,
		SessionTTL:      7 * 24 * time.Hour,
		DisplayTimezone: "UTC",
		AuthRateLimit:   10,
	}
}

// Load returns the configuration. Precedence, lowest first: defaults, the
// YAML file at path (if any), a .env file in the working directory, then
// the process environment.
func Load(path string) (models.Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("ROADGUARD_CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  Could not read .env: %v", err)
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.APIURL = strings.TrimRight(getEnv("API_URL", cfg.APIURL), "/")
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.DisplayTimezone = getEnv("DISPLAY_TIMEZONE", cfg.DisplayTimezone)
	cfg.SecureCookies = getEnv("SECURE_COOKIES", strconv.FormatBool(cfg.SecureCookies)) == "true"

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return cfg, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return cfg, err
	}
	if v, ok := os.LookupEnv("AUTH_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("AUTH_RATE_LIMIT must be a positive integer, got %q", v)
		}
		cfg.AuthRateLimit = n
	}
	if v, ok := os.LookupEnv("NOTIFY_URLS"); ok {
		cfg.NotifyURLs = splitList(v)
	}

	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return cfg, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", cfg.DisplayTimezone, err)
	}
	return cfg, nil
}

func applyFile(cfg *models.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.APIURL != "" {
		cfg.APIURL = strings.TrimRight(fc.APIURL, "/")
	}
	if fc.SessionSecret != "" {
		cfg.SessionSecret = fc.SessionSecret
	}
	if fc.DisplayTimezone != "" {
		cfg.DisplayTimezone = fc.DisplayTimezone
	}
	if len(fc.NotifyURLs) > 0 {
		cfg.NotifyURLs = fc.NotifyURLs
	}
	cfg.NotifyTargets = fc.NotifyTargets
	if fc.AuthRateLimit > 0 {
		cfg.AuthRateLimit = fc.AuthRateLimit
	}
	if fc.SecureCookies != nil {
		cfg.SecureCookies = *fc.SecureCookies
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("config %s: poll_interval: %w", path, err)
		}
		cfg.PollInterval = d
	}
	if fc.SessionTTL != "" {
		d, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("config %s: session_ttl: %w", path, err)
		}
		cfg.SessionTTL = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

// splitList parses a comma or whitespace separated list
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
