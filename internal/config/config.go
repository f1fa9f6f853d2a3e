package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultDriver       = "sqlite"
	defaultDSN          = "data/wordforge.db"
	defaultPollInterval = 30 * time.Second
	defaultCatchUpTime  = "09:00"
	defaultTimezone     = "Local"
	defaultLogLevel     = "info"

	configPathEnv     = "WORDFORGE_CONFIG"
	dbTypeEnv         = "DB_TYPE"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	notificationsEnv  = "NOTIFICATIONS_ENABLED"
	catchUpTimeEnv    = "CATCHUP_TIME"
	timezoneEnv       = "SCHEDULER_TIMEZONE"
	pollIntervalEnv   = "POLL_INTERVAL"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the SQL driver and its DSN.
// Supported drivers: sqlite (pure Go), sqlite3 (cgo), postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines the reminder loop and the daily catch-up anchor.
type SchedulerConfig struct {
	PollInterval string `yaml:"pollInterval"`
	CatchUpTime  string `yaml:"catchUpTime"` // HH:MM, local to Timezone
	Timezone     string `yaml:"timezone"`

	poll          time.Duration
	location      *time.Location
	catchUpHour   int
	catchUpMinute int
}

// Poll returns the parsed poll interval.
func (s SchedulerConfig) Poll() time.Duration {
	if s.poll <= 0 {
		return defaultPollInterval
	}
	return s.poll
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.Local
}

// CatchUpAt returns the hour and minute of the daily catch-up.
func (s SchedulerConfig) CatchUpAt() (hour, minute int) {
	return s.catchUpHour, s.catchUpMinute
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Disabled bool           `yaml:"disabled"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatId"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env files, the YAML configuration (if present) and applies
// environment overrides. With no arguments godotenv looks for ./.env.
func Load(envFiles ...string) Config {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load env file: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindScheduler()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbTypeEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			log.Printf("config: invalid %s %q: %v", telegramChatIDEnv, v, err)
		} else {
			c.Notifications.Telegram.ChatID = id
		}
	}
	if v := os.Getenv(notificationsEnv); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("config: invalid %s %q: %v", notificationsEnv, v, err)
		} else {
			c.Notifications.Disabled = !enabled
		}
	}

	if v := os.Getenv(catchUpTimeEnv); v != "" {
		c.Scheduler.CatchUpTime = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Scheduler.Timezone = v
	}
	if v := os.Getenv(pollIntervalEnv); v != "" {
		c.Scheduler.PollInterval = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindScheduler() {
	poll, err := time.ParseDuration(c.Scheduler.PollInterval)
	if err != nil || poll <= 0 {
		log.Printf("config: invalid poll interval %q, reverting to %s", c.Scheduler.PollInterval, defaultPollInterval)
		poll = defaultPollInterval
	}
	c.Scheduler.poll = poll

	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.Local
	}
	c.Scheduler.location = loc

	hour, minute, err := ParseTimeOfDay(c.Scheduler.CatchUpTime)
	if err != nil {
		log.Printf("config: %v, reverting to %s", err, defaultCatchUpTime)
		hour, minute, _ = ParseTimeOfDay(defaultCatchUpTime)
	}
	c.Scheduler.catchUpHour = hour
	c.Scheduler.catchUpMinute = minute
}

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Scheduler.PollInterval != "" {
		base.Scheduler.PollInterval = override.Scheduler.PollInterval
	}
	if override.Scheduler.CatchUpTime != "" {
		base.Scheduler.CatchUpTime = override.Scheduler.CatchUpTime
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Disabled {
		base.Notifications.Disabled = true
	}
	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != 0 {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: defaultDriver, DSN: defaultDSN},
		Scheduler: SchedulerConfig{
			PollInterval: defaultPollInterval.String(),
			CatchUpTime:  defaultCatchUpTime,
			Timezone:     defaultTimezone,
		},
		Logging: LoggingConfig{Level: defaultLogLevel},
	}
}
