// Package config hydrates process configuration once at startup.
//
// It generalizes the environment-variable accessors this codebase has long
// used (DATABASE_URL, SHARED_JWT_SECRET, PORT, ENVIRONMENT) into a single
// typed struct loaded through viper, so the same env var names keep working
// unchanged while gaining defaults, optional config-file overlays, and
// struct-level validation.
package config

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// Config is the full set of values the server needs at startup.
type Config struct {
	Environment      string // development | staging | production
	Port             string
	DatabaseURL      string
	ControlPlaneURL  string
	JWTSecret        string
	LogLevel         string
	DBMaxConns       int32
	DBMinConns       int32
	DBConnectTimeout time.Duration
	DefaultTTL       time.Duration
}

const (
	defaultPort       = "8080"
	defaultLogLevel   = "info"
	defaultMaxConns   = int32(20)
	defaultMinConns   = int32(2)
	defaultConnTO     = 10 * time.Second
	defaultTTLSeconds = 3600
)

// Load reads configuration from the environment (and an optional
// config.yaml/config.toml in the working directory) and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("db_max_conns", defaultMaxConns)
	v.SetDefault("db_min_conns", defaultMinConns)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absence of a config file is not an error

	bindEnv(v, "environment", "ENVIRONMENT")
	bindEnv(v, "port", "PORT")
	bindEnv(v, "database_url", "DATABASE_URL")
	bindEnv(v, "control_plane_url", "CONTROL_PLANE_URL")
	bindEnv(v, "jwt_secret", "SHARED_JWT_SECRET")
	bindEnv(v, "log_level", "LOG_LEVEL")

	cfg := &Config{
		Environment:      strings.ToLower(v.GetString("environment")),
		Port:             v.GetString("port"),
		DatabaseURL:      v.GetString("database_url"),
		ControlPlaneURL:  v.GetString("control_plane_url"),
		JWTSecret:        v.GetString("jwt_secret"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		DBMaxConns:       v.GetInt32("db_max_conns"),
		DBMinConns:       v.GetInt32("db_min_conns"),
		DBConnectTimeout: defaultConnTO,
		DefaultTTL:       defaultTTLSeconds * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

// IsDevelopment mirrors the bare-boolean checks the rest of the codebase
// grew up using, now derived from the hydrated struct instead of a fresh
// os.Getenv call at every call site.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "dev" || c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.JWTSecret, validation.By(c.validateJWTSecret)),
		validation.Field(&c.DBMaxConns, validation.Min(int32(1))),
		validation.Field(&c.DBMinConns, validation.Min(int32(0))),
	)
}

// validateJWTSecret requires a real secret in production only; development
// mode never signs or verifies a token so an empty secret is fine there.
func (c *Config) validateJWTSecret(value interface{}) error {
	if !c.IsProduction() {
		return nil
	}
	secret, _ := value.(string)
	if len(secret) < 32 {
		return validation.NewError("jwt_secret_too_short", "SHARED_JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}
