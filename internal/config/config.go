package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geopark-pipeline/internal/common"

	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig
	Store    StoreConfig
	Email    EmailConfig
	Schedule ScheduleConfig
	Report   ReportConfig
	Server   ServerConfig
	Log      LogConfig

	RunOnStart bool
	// Render is set when running on a hosted platform with an ephemeral filesystem.
	Render bool
}

type APIConfig struct {
	Key               string
	BaseURL           string
	Symbol            string
	BenchmarkFunction string
	Timeout           time.Duration
	MinDelay          time.Duration // spacing between successive feed calls
}

type StoreConfig struct {
	Connection string
	Database   string
	Collection string
}

type EmailConfig struct {
	Sender     string
	Password   string
	Recipients []string
	SMTPHost   string
	SMTPPort   int
}

type ScheduleConfig struct {
	Time string // HH:MM, local time
}

type ReportConfig struct {
	Dir     string
	History int
	Title   string
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// env aliases per key; the first variable that is set wins
var envBindings = map[string][]string{
	"api.key":                {"ALPHA_VANTAGE_API_KEY", "API_KEY"},
	"api.base_url":           {"ALPHA_VANTAGE_BASE_URL"},
	"api.symbol":             {"SYMBOL"},
	"api.benchmark_function": {"BENCHMARK_FUNCTION"},
	"api.timeout":            {"API_TIMEOUT"},
	"api.min_delay":          {"API_MIN_DELAY"},
	"store.connection":       {"MONGODB_URI", "STORE_URI", "DATABASE_URL"},
	"store.database":         {"MONGODB_DB", "STORE_DATABASE"},
	"store.collection":       {"MONGODB_COLLECTION", "STORE_COLLECTION"},
	"email.sender":           {"EMAIL_SENDER"},
	"email.password":         {"EMAIL_PASSWORD"},
	"email.recipients":       {"EMAIL_RECIPIENTS"},
	"email.smtp_host":        {"SMTP_HOST"},
	"email.smtp_port":        {"SMTP_PORT"},
	"schedule.time":          {"SCHEDULE_TIME"},
	"report.dir":             {"REPORT_DIR"},
	"report.history":         {"REPORT_HISTORY"},
	"report.title":           {"REPORT_TITLE"},
	"server.port":            {"PORT"},
	"run_on_start":           {"RUN_ON_START"},
	"log.level":              {"LOG_LEVEL"},
	"log.format":             {"LOG_FORMAT"},
	"log.file":               {"LOG_FILE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://www.alphavantage.co")
	v.SetDefault("api.symbol", "GPRK")
	v.SetDefault("api.benchmark_function", "WTI")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.min_delay", "2s")
	v.SetDefault("store.database", "market_data")
	v.SetDefault("store.collection", "geopark_daily")
	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("schedule.time", "18:00")
	v.SetDefault("report.history", 30)
	v.SetDefault("report.title", "GeoPark")
	v.SetDefault("server.port", "10000")
	v.SetDefault("run_on_start", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load builds the configuration from an optional config file and the environment.
// An empty path searches for config.{json,yaml,toml} in the working directory; a missing file
// is not an error in that case.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, common.New(common.ErrConfig, "failed to bind "+key, err)
		}
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, common.New(common.ErrConfig, "failed to read config file "+path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, common.New(common.ErrConfig, "failed to read config file", err)
			}
		}
	}

	cfg := &Config{
		API: APIConfig{
			Key:               v.GetString("api.key"),
			BaseURL:           strings.TrimRight(v.GetString("api.base_url"), "/"),
			Symbol:            v.GetString("api.symbol"),
			BenchmarkFunction: v.GetString("api.benchmark_function"),
			Timeout:           v.GetDuration("api.timeout"),
			MinDelay:          v.GetDuration("api.min_delay"),
		},
		Store: StoreConfig{
			Connection: v.GetString("store.connection"),
			Database:   v.GetString("store.database"),
			Collection: v.GetString("store.collection"),
		},
		Email: EmailConfig{
			Sender:     v.GetString("email.sender"),
			Password:   v.GetString("email.password"),
			Recipients: stringList(v, "email.recipients"),
			SMTPHost:   v.GetString("email.smtp_host"),
			SMTPPort:   v.GetInt("email.smtp_port"),
		},
		Schedule: ScheduleConfig{Time: v.GetString("schedule.time")},
		Report: ReportConfig{
			Dir:     v.GetString("report.dir"),
			History: v.GetInt("report.history"),
			Title:   v.GetString("report.title"),
		},
		Server:     ServerConfig{Port: v.GetString("server.port")},
		Log:        LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format"), File: v.GetString("log.file")},
		RunOnStart: v.GetBool("run_on_start"),
		Render:     os.Getenv("RENDER") != "",
	}

	// Hosted platforms only guarantee a writable temp dir.
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = "."
		if cfg.Render {
			cfg.Report.Dir = os.TempDir()
		}
	}
	cfg.Report.Dir = filepath.Clean(cfg.Report.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every run depends on.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return common.Newf(common.ErrConfig, "api.key is required")
	}
	if c.Store.Connection == "" {
		return common.Newf(common.ErrConfig, "store.connection is required")
	}
	if _, _, err := c.Schedule.Clock(); err != nil {
		return common.New(common.ErrConfig, "invalid schedule.time", err)
	}
	if c.Report.History <= 0 {
		return common.Newf(common.ErrConfig, "report.history must be positive, got %d", c.Report.History)
	}
	if c.API.MinDelay < 0 {
		return common.Newf(common.ErrConfig, "api.min_delay must not be negative")
	}
	return nil
}

// Clock parses Time as hour and minute.
func (s ScheduleConfig) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s.Time)
	}
	return t.Hour(), t.Minute(), nil
}

func stringList(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// MaskSecret keeps the first characters of a secret for log lines.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
