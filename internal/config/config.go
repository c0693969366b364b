package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the task engine.
type Config struct {
	Env              string
	Debug            bool
	DatabaseDriver   string
	DatabaseURL      string
	HTTPAddr         string
	JWTSecret        string
	TelegramToken    string
	AdminTelegramIDs []int64
	RenewalTime      string
	RenewalTimeout   time.Duration
	RenewOnStartup   bool
	DigestTime       string // empty disables the Telegram digest
	Location         *time.Location
	RollbarToken     string
}

// Load reads configuration from an optional .env file and the environment,
// falling back to sane defaults.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "tutor_tasks.db")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("renewal_time", "00:05")
	v.SetDefault("renewal_timeout", 5*time.Minute)
	v.SetDefault("renew_on_startup", false)
	v.SetDefault("timezone", "Local")
	v.AutomaticEnv()

	cfg := Config{
		Env:            strings.ToLower(strings.TrimSpace(v.GetString("env"))),
		Debug:          v.GetBool("debug"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database_driver"))),
		DatabaseURL:    strings.TrimSpace(v.GetString("database_url")),
		HTTPAddr:       strings.TrimSpace(v.GetString("http_addr")),
		JWTSecret:      strings.TrimSpace(v.GetString("jwt_secret")),
		TelegramToken:  strings.TrimSpace(v.GetString("telegram_token")),
		RenewalTime:    strings.TrimSpace(v.GetString("renewal_time")),
		RenewalTimeout: v.GetDuration("renewal_timeout"),
		RenewOnStartup: v.GetBool("renew_on_startup"),
		DigestTime:     strings.TrimSpace(v.GetString("digest_time")),
		RollbarToken:   strings.TrimSpace(v.GetString("rollbar_token")),
	}

	ids, err := parseTelegramIDs(v.GetString("admin_telegram_ids"))
	if err != nil {
		return cfg, err
	}
	cfg.AdminTelegramIDs = ids

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("timezone")))
	if err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return cfg, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if cfg.RenewalTimeout <= 0 {
		cfg.RenewalTimeout = 5 * time.Minute
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// IsAdminTelegramID reports whether the Telegram account is configured as an admin.
func (c Config) IsAdminTelegramID(id int64) bool {
	for _, admin := range c.AdminTelegramIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// loadDotEnv loads .env from the working directory if it exists.
func loadDotEnv() error {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func parseTelegramIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS entry %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
