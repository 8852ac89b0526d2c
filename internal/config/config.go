// Package config loads service settings.
//
// Precedence, lowest first:
//
//	built-in defaults → config file (yaml/json/toml) → .env file → environment
//
// Every key can be set from the environment by upper-casing it and
// replacing dots with underscores: auth.jwt_secret → AUTH_JWT_SECRET.
// A few short aliases (JWT_SECRET, PORT, DATABASE_URL, REDIS_ADDR) are
// bound as well.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	Site         SiteConfig
	Reaper       ReaperConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

type DatabaseConfig struct {
	Driver string // sqlite or pgx
	DSN    string
}

type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

type PasswordConfig struct {
	MinLength int
}

type RegistrationConfig struct {
	PendingTTL time.Duration
	RateLimit  int
	RateWindow time.Duration
}

// RedisConfig is optional; an empty Addr selects the in-process counter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig is optional; an empty Host logs emails instead of sending.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SiteConfig is the public address used in activation links.
type SiteConfig struct {
	Protocol string
	Domain   string
}

type ReaperConfig struct {
	Interval      time.Duration
	InactiveAfter time.Duration
	BatchSize     int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/accounts.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("password.min_length", 8)
	v.SetDefault("registration.pending_ttl", 10*time.Minute)
	v.SetDefault("registration.rate_limit", 5)
	v.SetDefault("registration.rate_window", time.Minute)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "noreply@localhost")
	v.SetDefault("site.protocol", "http")
	v.SetDefault("site.domain", "localhost:8080")
	v.SetDefault("reaper.interval", 5*time.Minute)
	v.SetDefault("reaper.inactive_after", 30*24*time.Hour)
	v.SetDefault("reaper.batch_size", 500)
}

// aliases are extra environment names accepted for some keys.
var aliases = map[string][]string{
	"server.port":         {"PORT"},
	"auth.jwt_secret":     {"JWT_SECRET"},
	"database.dsn":        {"DATABASE_URL", "DB_PATH"},
	"redis.addr":          {"REDIS_ADDR"},
	"redis.password":      {"REDIS_PASSWORD"},
	"smtp.password":       {"SMTP_PASS"},
	"log.level":           {"LOG_LEVEL"},
	"site.domain":         {"SITE_DOMAIN"},
	"site.protocol":       {"SITE_PROTOCOL"},
	"database.driver":     {"DB_DRIVER"},
	"reaper.interval":     {"REAPER_INTERVAL"},
	"smtp.host":           {"SMTP_HOST"},
	"smtp.username":       {"SMTP_USER"},
	"server.cors_origins": {"CORS_ORIGINS"},
}

// Load reads configuration. configFile may be empty. envFile names a
// dotenv file that is loaded when present; its values never override
// variables already set in the process environment.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		canonical := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, canonical}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("server.port"),
			CORSOrigins: splitList(v.GetStringSlice("server.cors_origins")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("auth.jwt_secret"),
			AccessTTL:  v.GetDuration("auth.access_ttl"),
			RefreshTTL: v.GetDuration("auth.refresh_ttl"),
			BcryptCost: v.GetInt("auth.bcrypt_cost"),
		},
		Password: PasswordConfig{
			MinLength: v.GetInt("password.min_length"),
		},
		Registration: RegistrationConfig{
			PendingTTL: v.GetDuration("registration.pending_ttl"),
			RateLimit:  v.GetInt("registration.rate_limit"),
			RateWindow: v.GetDuration("registration.rate_window"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Site: SiteConfig{
			Protocol: v.GetString("site.protocol"),
			Domain:   v.GetString("site.domain"),
		},
		Reaper: ReaperConfig{
			Interval:      v.GetDuration("reaper.interval"),
			InactiveAfter: v.GetDuration("reaper.inactive_after"),
			BatchSize:     v.GetInt("reaper.batch_size"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case len(c.Auth.JWTSecret) < 16:
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		// Above MaxCost every hash fails; below MinCost bcrypt silently uses its default.
		return fmt.Errorf("config: auth.bcrypt_cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	case c.Database.Driver != "sqlite" && c.Database.Driver != "pgx":
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	case c.Database.DSN == "":
		return errors.New("config: database.dsn is required")
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	case c.Registration.PendingTTL <= 0:
		return errors.New("config: registration.pending_ttl must be positive")
	case c.Registration.RateLimit <= 0 || c.Registration.RateWindow <= 0:
		return errors.New("config: registration rate limit and window must be positive")
	case c.Reaper.Interval <= 0 || c.Reaper.InactiveAfter <= 0:
		return errors.New("config: reaper.interval and reaper.inactive_after must be positive")
	case c.Log.Format != "text" && c.Log.Format != "json":
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}
	return nil
}

// splitList accepts both a real list and a single comma-separated value,
// which is what a list looks like when it comes from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
