package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Web      WebConfig      `mapstructure:"web"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// OnPlantDelete is either "cascade" or "restrict". It only takes effect
	// when the schema is first created.
	OnPlantDelete string `mapstructure:"on_plant_delete"`
}

type WebConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Port          int    `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	CSRF          bool   `mapstructure:"csrf"`
	LoginRate     int    `mapstructure:"login_rate"`
	// SecureCookies marks the session and anti-forgery cookies Secure. Turn it
	// on when the site is served over HTTPS.
	SecureCookies bool `mapstructure:"secure_cookies"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	OnDeleteCascade  = "cascade"
	OnDeleteRestrict = "restrict"
)

func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: DriverSQLite, OnPlantDelete: OnDeleteCascade},
		Web:      WebConfig{Port: 8080, CSRF: true, LoginRate: 5},
		Log:      LogConfig{Level: "info", Format: "text"},
		Sentry:   SentryConfig{Environment: "production"},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "plantcare", "config.yaml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads the YAML file at path on top of Default. A missing file is not
// an error. PLANTCARE_* environment variables override file values, for
// example PLANTCARE_WEB_PORT or PLANTCARE_DATABASE_DSN.
func Load(path string) (Config, error) {
	v := newViper(Default())
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	v := newViper(cfg)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Database.OnPlantDelete {
	case OnDeleteCascade, OnDeleteRestrict:
	default:
		return fmt.Errorf("database.on_plant_delete must be %q or %q", OnDeleteCascade, OnDeleteRestrict)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	return nil
}

// EnsureSessionSecret fills in a random session secret when none is set.
// It reports whether the config changed.
func (c *Config) EnsureSessionSecret() (bool, error) {
	if c.Web.SessionSecret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, err
	}
	c.Web.SessionSecret = hex.EncodeToString(buf)
	return true, nil
}

func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("plantcare")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.on_plant_delete", cfg.Database.OnPlantDelete)
	v.SetDefault("web.enabled", cfg.Web.Enabled)
	v.SetDefault("web.port", cfg.Web.Port)
	v.SetDefault("web.session_secret", cfg.Web.SessionSecret)
	v.SetDefault("web.csrf", cfg.Web.CSRF)
	v.SetDefault("web.login_rate", cfg.Web.LoginRate)
	v.SetDefault("web.secure_cookies", cfg.Web.SecureCookies)
	v.SetDefault("admin.email", cfg.Admin.Email)
	v.SetDefault("admin.password", cfg.Admin.Password)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("sentry.dsn", cfg.Sentry.DSN)
	v.SetDefault("sentry.environment", cfg.Sentry.Environment)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	return v
}
