package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the identity server needs to start. Values come
// from an optional YAML file pointed to by IDENTITY_CONFIG_FILE, with
// environment variables overriding the file.
type Config struct {
	Issuer string `yaml:"issuer"` // issuer claim stamped into every token

	Algorithm string `yaml:"algorithm"` // RS256, ES256, or EdDSA (default EdDSA)
	RSABits   int    `yaml:"rsa_bits"`  // RSA key size for RS256
	NumKeys   int    `yaml:"num_keys"`  // signing keys to generate at startup

	DatabaseFile string `yaml:"database_file"` // SQLite database path (default ./identity.db)

	Env       string `yaml:"env"`        // dev, staging, prod (default dev)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, text
	Port      int    `yaml:"port"`       // HTTP listen port (default 8080)

	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`

	// Token lifetimes. Zero values fall back to the built-in defaults.
	AuthorizationCodeTTL time.Duration `yaml:"authorization_code_ttl"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl"`
	IDTokenTTL           time.Duration `yaml:"id_token_ttl"`

	// ExtraScopes extends scopes_supported in the discovery document.
	ExtraScopes []string `yaml:"extra_scopes"`
}

// LoadConfig builds the configuration from the optional YAML file and the
// environment. Environment variables always win.
func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:               "http://localhost:8080",
		Algorithm:            "EdDSA",
		DatabaseFile:         "identity.db",
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: 1 * time.Hour,
	}

	if path := os.Getenv("IDENTITY_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Issuer, "IDENTITY_ISSUER")
	setString(&cfg.Algorithm, "IDENTITY_ALGORITHM")
	setInt(&cfg.RSABits, "IDENTITY_RSA_BITS")
	setInt(&cfg.NumKeys, "IDENTITY_NUM_KEYS")
	setString(&cfg.DatabaseFile, "IDENTITY_DATABASE_FILE")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setInt(&cfg.Port, "PORT")
	setDuration(&cfg.ShutdownGracePeriod, "SHUTDOWN_GRACE_PERIOD")
	setDuration(&cfg.HousekeepingInterval, "HOUSEKEEPING_INTERVAL")
	setDuration(&cfg.AuthorizationCodeTTL, "IDENTITY_CODE_TTL")
	setDuration(&cfg.AccessTokenTTL, "IDENTITY_ACCESS_TOKEN_TTL")
	setDuration(&cfg.RefreshTokenTTL, "IDENTITY_REFRESH_TOKEN_TTL")
	setDuration(&cfg.IDTokenTTL, "IDENTITY_ID_TOKEN_TTL")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}
