// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	CacheDir           string
	RequireHash        bool
	HTTPTimeout        time.Duration
	MaxRetries         uint64
	Debug              bool
	Port               string
	CORSAllowedOrigins []string
	BaseURLOverride    string
	// Mirror is nil unless ANTGRID_MIRROR_ENDPOINT is set.
	Mirror *MirrorConfig
}

// MirrorConfig holds the optional MinIO mirror settings.
type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

type ErrInvalidEnvVar struct {
	Name  string
	Value string
	Err   error
}

func (e *ErrInvalidEnvVar) Error() string {
	return fmt.Sprintf("invalid value %q for environment variable %q: %v", e.Value, e.Name, e.Err)
}

func (e *ErrInvalidEnvVar) Unwrap() error { return e.Err }

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are named. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load reads configuration from environment variables.
// Returns an error if a required variable is missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		CacheDir:        getEnv("ANTGRID_CACHE_DIR", defaultCacheDir()),
		Port:            getEnv("PORT", "8080"),
		BaseURLOverride: os.Getenv("ANTGRID_BASE_URL_OVERRIDE"),
	}

	var err error
	if cfg.RequireHash, err = boolEnv("ANTGRID_REQUIRE_HASH", false); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolEnv("ANTGRID_DEBUG", false); err != nil {
		return nil, err
	}

	timeout := getEnv("ANTGRID_HTTP_TIMEOUT", "30m")
	if cfg.HTTPTimeout, err = time.ParseDuration(timeout); err != nil {
		return nil, &ErrInvalidEnvVar{Name: "ANTGRID_HTTP_TIMEOUT", Value: timeout, Err: err}
	}

	retries := getEnv("ANTGRID_MAX_RETRIES", "5")
	if cfg.MaxRetries, err = strconv.ParseUint(retries, 10, 32); err != nil {
		return nil, &ErrInvalidEnvVar{Name: "ANTGRID_MAX_RETRIES", Value: retries, Err: err}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if endpoint := os.Getenv("ANTGRID_MIRROR_ENDPOINT"); endpoint != "" {
		m := &MirrorConfig{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("ANTGRID_MIRROR_ACCESS_KEY"),
			SecretKey: os.Getenv("ANTGRID_MIRROR_SECRET_KEY"),
			Bucket:    getEnv("ANTGRID_MIRROR_BUCKET", "antgrid-cache"),
		}
		if m.AccessKey == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: "ANTGRID_MIRROR_ACCESS_KEY"}
		}
		if m.SecretKey == "" {
			return nil, &ErrMissingRequiredEnvVar{Name: "ANTGRID_MIRROR_SECRET_KEY"}
		}
		if m.UseSSL, err = boolEnv("ANTGRID_MIRROR_USE_SSL", false); err != nil {
			return nil, err
		}
		cfg.Mirror = m
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, &ErrInvalidEnvVar{Name: key, Value: value, Err: err}
	}
	return b, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "antgrid")
	}
	return filepath.Join(os.TempDir(), "antgrid")
}
