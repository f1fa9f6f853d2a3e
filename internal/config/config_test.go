package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnv = []string{
	configPathEnv, dbTypeEnv, databaseDSNEnv, telegramTokenEnv, telegramChatIDEnv,
	notificationsEnv, catchUpTimeEnv, timezoneEnv, pollIntervalEnv, logLevelEnv,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnv {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != defaultDSN {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.Poll() != 30*time.Second {
		t.Fatalf("poll = %v, want 30s", cfg.Scheduler.Poll())
	}
	if h, m := cfg.Scheduler.CatchUpAt(); h != 9 || m != 0 {
		t.Fatalf("catch-up at %02d:%02d, want 09:00", h, m)
	}
	if cfg.Notifications.Disabled {
		t.Fatal("notifications should be enabled by default")
	}
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wordforge.yaml")
	yml := `
database:
  driver: postgres
  dsn: postgres://u:p@localhost/words
scheduler:
  pollInterval: 5s
  catchUpTime: "07:30"
  timezone: UTC
notifications:
  telegram:
    botToken: file-token
    chatId: 42
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(telegramTokenEnv, "env-token")
	t.Setenv(notificationsEnv, "false")

	cfg := Load(filepath.Join(dir, "missing.env"))

	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://u:p@localhost/words" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Scheduler.Poll() != 5*time.Second {
		t.Fatalf("poll = %v, want 5s", cfg.Scheduler.Poll())
	}
	if h, m := cfg.Scheduler.CatchUpAt(); h != 7 || m != 30 {
		t.Fatalf("catch-up at %02d:%02d, want 07:30", h, m)
	}
	if cfg.Scheduler.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC", cfg.Scheduler.Location())
	}
	if cfg.Notifications.Telegram.BotToken != "env-token" {
		t.Fatalf("token = %q, env should win", cfg.Notifications.Telegram.BotToken)
	}
	if cfg.Notifications.Telegram.ChatID != 42 {
		t.Fatalf("chat id = %d, want 42", cfg.Notifications.Telegram.ChatID)
	}
	if !cfg.Notifications.Disabled {
		t.Fatal("NOTIFICATIONS_ENABLED=false should disable notifications")
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even to "".
	os.Unsetenv(databaseDSNEnv)
	os.Unsetenv(catchUpTimeEnv)

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DATABASE_DSN=/tmp/from-dotenv.db\nCATCHUP_TIME=18:45\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv(databaseDSNEnv)
		os.Unsetenv(catchUpTimeEnv)
	})

	cfg := Load(path)
	if cfg.Database.DSN != "/tmp/from-dotenv.db" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if h, m := cfg.Scheduler.CatchUpAt(); h != 18 || m != 45 {
		t.Fatalf("catch-up at %02d:%02d, want 18:45", h, m)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(pollIntervalEnv, "soon")
	t.Setenv(catchUpTimeEnv, "25:99")
	t.Setenv(timezoneEnv, "Mars/Olympus")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Scheduler.Poll() != defaultPollInterval {
		t.Errorf("poll = %v", cfg.Scheduler.Poll())
	}
	if h, m := cfg.Scheduler.CatchUpAt(); h != 9 || m != 0 {
		t.Errorf("catch-up at %02d:%02d, want 09:00", h, m)
	}
	if cfg.Scheduler.Location() != time.Local {
		t.Errorf("location = %v, want Local", cfg.Scheduler.Location())
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("09:05")
	if err != nil || h != 9 || m != 5 {
		t.Fatalf("ParseTimeOfDay = %d, %d, %v", h, m, err)
	}
	if _, _, err := ParseTimeOfDay("9am"); err == nil {
		t.Fatal("expected error for 9am")
	}
}
