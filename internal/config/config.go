package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SKOVKROGEN_CONFIG"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

type Config struct {
	App struct {
		Timezone         string `yaml:"timezone"`
		HorizonMonths    int    `yaml:"horizon_months"`
		EnforceExclusive bool   `yaml:"enforce_exclusive"`
		HouseholdPath    string `yaml:"household_path"`
		ReloadSeconds    int    `yaml:"reload_seconds"`
	} `yaml:"app"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`

	Supabase struct {
		URL             string `yaml:"url"`
		AnonKey         string `yaml:"anon_key"`
		JWTSecret       string `yaml:"jwt_secret"`
		Table           string `yaml:"table"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
	} `yaml:"supabase"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Selection struct {
		TimeoutMinutes         int `yaml:"timeout_minutes"`
		CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	} `yaml:"selection"`

	Backup BackupConfig `yaml:"backup"`

	HTTP struct {
		Address        string   `yaml:"address"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		RateLimitRPS   float64  `yaml:"rate_limit_rps"`
		RateLimitBurst int      `yaml:"rate_limit_burst"`
		ResetRedirect  string   `yaml:"reset_redirect"`
	} `yaml:"http"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
		// Local hour for the daily arrival and checkout reminders.
		ReminderHour int `yaml:"reminder_hour"`
	} `yaml:"telegram"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Google struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"google"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// BackupConfig drives the SQLite file backup loop.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Interval returns the time between backups.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

// Load reads the YAML config at path. An empty path falls back to
// $SKOVKROGEN_CONFIG and then configs/config.yaml. A .env file in the working
// directory is loaded first so its values can be used as ${VAR} placeholders.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config YAML, expands ${ENV} placeholders and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == DriverSQLite && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Timezone == "" {
		c.App.Timezone = "Europe/Copenhagen"
	}
	if c.App.HorizonMonths == 0 {
		c.App.HorizonMonths = 60
	}
	if c.App.HouseholdPath == "" {
		c.App.HouseholdPath = "configs/household.yaml"
	}
	if c.App.ReloadSeconds <= 0 {
		c.App.ReloadSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/skovkrogen.db"
	}
	if c.Supabase.Table == "" {
		c.Supabase.Table = "bookings"
	}
	if c.Supabase.TimeoutSeconds <= 0 {
		c.Supabase.TimeoutSeconds = 10
	}
	if c.Selection.TimeoutMinutes <= 0 {
		c.Selection.TimeoutMinutes = 30
	}
	if c.Selection.CleanupIntervalMinutes <= 0 {
		c.Selection.CleanupIntervalMinutes = 5
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.Telegram.ReminderHour == 0 {
		c.Telegram.ReminderHour = 9
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "skovkrogen"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Bookinger"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Validate checks fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("app.timezone: %w", err))
	}
	if c.App.HorizonMonths < 0 {
		errs = append(errs, errors.New("app.horizon_months must not be negative"))
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres driver"))
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.url and supabase.anon_key are required for the supabase driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required when telegram is enabled"))
	}
	if c.Telegram.ReminderHour < 0 || c.Telegram.ReminderHour > 23 {
		errs = append(errs, errors.New("telegram.reminder_hour must be between 0 and 23"))
	}
	if c.Google.Enabled && (c.Google.CredentialsFile == "" || c.Google.SpreadsheetID == "") {
		errs = append(errs, errors.New("google.credentials_file and google.spreadsheet_id are required when google is enabled"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) SelectionTimeout() time.Duration {
	return time.Duration(c.Selection.TimeoutMinutes) * time.Minute
}

func (c *Config) SelectionCleanupInterval() time.Duration {
	return time.Duration(c.Selection.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) SupabaseCacheTTL() time.Duration {
	if c.Supabase.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Supabase.CacheTTLSeconds) * time.Second
}

func (c *Config) SupabaseTimeout() time.Duration {
	return time.Duration(c.Supabase.TimeoutSeconds) * time.Second
}

func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.App.ReloadSeconds) * time.Second
}
