package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	Storage         string   `mapstructure:"STORAGE"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	DBSchema        string   `mapstructure:"DB_SCHEMA"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey  string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit       string   `mapstructure:"BODY_LIMIT"`
	UploadLimit     string   `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout  string   `mapstructure:"REQUEST_TIMEOUT"`
	DefaultCategory string   `mapstructure:"DEFAULT_CATEGORY"`
	FlashCookie     string   `mapstructure:"FLASH_COOKIE"`
	FlashSecret     string   `mapstructure:"FLASH_SECRET"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_LIMIT",
	"REQUEST_TIMEOUT", "DEFAULT_CATEGORY", "FLASH_COOKIE", "FLASH_SECRET",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", StorageMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("DEFAULT_CATEGORY", "inpatient")
	v.SetDefault("FLASH_COOKIE", "tracker_flash")

	// Bind explicitly so Unmarshal sees variables that have no default.
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE=%s", StoragePostgres)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) UsesPostgres() bool {
	return c.Storage == StoragePostgres
}

// minFlashSecret is the shortest FLASH_SECRET accepted outside development.
const minFlashSecret = 32

// Validate checks that the configuration is safe to serve with. Outside
// development a token verifier must be configured, either a JWKS endpoint
// or a shared signing key, and flash cookies need a signing secret.
func (c *Config) Validate() error {
	if c.Storage != StorageMemory && c.Storage != StoragePostgres {
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}
	if !c.IsDev() && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set outside development (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if strings.TrimSpace(c.DefaultCategory) == "" {
		return fmt.Errorf("DEFAULT_CATEGORY must not be empty")
	}
	if strings.TrimSpace(c.FlashCookie) == "" {
		return fmt.Errorf("FLASH_COOKIE must not be empty")
	}
	if !c.IsDev() && len(c.FlashSecret) < minFlashSecret {
		return fmt.Errorf("FLASH_SECRET must be at least %d bytes outside development", minFlashSecret)
	}
	return nil
}
