package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Messenger MessengerConfig `mapstructure:"messenger"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Questions QuestionsConfig `mapstructure:"questions"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MessengerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AppSecret       string `mapstructure:"app_secret"`
	ValidationToken string `mapstructure:"validation_token"`
	PageAccessToken string `mapstructure:"page_access_token"`
	ServerURL       string `mapstructure:"server_url"`
	GraphURL        string `mapstructure:"graph_url"`
	SetupThread     bool   `mapstructure:"setup_thread"`
	WebsiteURL      string `mapstructure:"website_url"`
}

type SMSConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type QuestionsConfig struct {
	SourceURL string `mapstructure:"source_url"`
	Category  int    `mapstructure:"category"`
	PerPage   int    `mapstructure:"per_page"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path (when it exists), applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("messenger.enabled", true)
	v.SetDefault("messenger.graph_url", "https://graph.facebook.com/v2.6/me")
	v.SetDefault("messenger.setup_thread", true)
	v.SetDefault("messenger.website_url", "http://www.interviewbud.com")
	v.SetDefault("sms.enabled", false)
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "interviewbud")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "interviewbud.db")
	v.SetDefault("questions.category", 1)
	v.SetDefault("questions.per_page", 50)
	v.SetDefault("log.development", false)

	// Enable environment variable support
	v.AutomaticEnv()
	bindings := map[string]string{
		"server.port":                 "PORT",
		"messenger.app_secret":        "MESSENGER_APP_SECRET",
		"messenger.validation_token":  "MESSENGER_VALIDATION_TOKEN",
		"messenger.page_access_token": "MESSENGER_PAGE_ACCESS_TOKEN",
		"messenger.server_url":        "SERVER_URL",
		"telegram.token":              "TELEGRAM_TOKEN",
		"questions.source_url":        "IVB_QUESTIONS_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// DATABASE_URL wins over the database section
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.Messenger.Enabled {
		var missing []string
		if c.Messenger.AppSecret == "" {
			missing = append(missing, "MESSENGER_APP_SECRET")
		}
		if c.Messenger.ValidationToken == "" {
			missing = append(missing, "MESSENGER_VALIDATION_TOKEN")
		}
		if c.Messenger.PageAccessToken == "" {
			missing = append(missing, "MESSENGER_PAGE_ACCESS_TOKEN")
		}
		if c.Messenger.ServerURL == "" {
			missing = append(missing, "SERVER_URL")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing config values: %s", strings.Join(missing, ", "))
		}
	}

	switch c.Database.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
