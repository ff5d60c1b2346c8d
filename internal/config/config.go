package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/ilyakaznacheev/cleanenv"
	_ "github.com/joho/godotenv/autoload"
)

// Disabled turns off an optional daily job when used as its time.
const Disabled = "off"

// Config keeps runtime settings for the bot.
type Config struct {
	Env         string         `yaml:"env" env:"ENV" env-default:"prod"`
	DatabaseURL string         `yaml:"database_url" env:"DATABASE_URL" env-default:"planner.db"`
	Telegram    TelegramConfig `yaml:"telegram"`
	Planner     PlannerConfig  `yaml:"planner"`
	Log         LogConfig      `yaml:"log"`
}

type TelegramConfig struct {
	Token string `yaml:"token" env:"TELEGRAM_TOKEN" env-required:"true"`
	// ChatID restricts the bot to one owner chat. Zero serves any chat.
	ChatID int64 `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
}

type PlannerConfig struct {
	HorizonDays  int    `yaml:"horizon_days" env:"HORIZON_DAYS" env-default:"30"`
	HorizonTopUp bool   `yaml:"horizon_topup" env:"HORIZON_TOPUP" env-default:"false"`
	TopUpTime    string `yaml:"topup_time" env:"TOPUP_TIME" env-default:"00:05"`
	ReportTime   string `yaml:"report_time" env:"REPORT_TIME" env-default:"08:00"`
	SnapMinutes  int    `yaml:"snap_minutes" env:"SNAP_MINUTES" env-default:"15"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"28"`
}

// Load reads configuration from CONFIG_PATH (if set) and the environment.
// Variables from a .env file in the working directory are loaded first.
func Load() (Config, error) {
	var cfg Config
	var err error
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values cleanenv cannot express with tags.
func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	switch c.Env {
	case "local", "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("ENV must be local, dev or prod, got %q", c.Env))
	}
	if c.Planner.HorizonDays <= 0 {
		errs = append(errs, fmt.Errorf("HORIZON_DAYS must be positive, got %d", c.Planner.HorizonDays))
	}
	if s := c.Planner.SnapMinutes; s <= 0 || 60%s != 0 {
		errs = append(errs, fmt.Errorf("SNAP_MINUTES must divide 60, got %d", s))
	}
	if c.Planner.ReportTime != Disabled {
		if _, err := ParseClock(c.Planner.ReportTime); err != nil {
			errs = append(errs, fmt.Errorf("REPORT_TIME: %w", err))
		}
	}
	if c.Planner.HorizonTopUp {
		if _, err := ParseClock(c.Planner.TopUpTime); err != nil {
			errs = append(errs, fmt.Errorf("TOPUP_TIME: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ParseClock parses an HH:MM time of day.
func ParseClock(s string) (civil.Time, error) {
	t, err := civil.ParseTime(strings.TrimSpace(s) + ":00")
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t, nil
}
