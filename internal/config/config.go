// Package config handles process settings from environment variables and the
// monitor configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Dedup backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Settings holds the process-level configuration.
type Settings struct {
	ConfigPath       string        `env:"CONFIG_PATH"        envDefault:"config.json"`
	DatabasePath     string        `env:"DATABASE_PATH"      envDefault:"./data/checked.db"`
	DedupBackend     string        `env:"DEDUP_BACKEND"      envDefault:"sqlite"`
	DedupJSONPath    string        `env:"DEDUP_JSON_PATH"    envDefault:"./data/checked_articles.json"`
	RegistrationPath string        `env:"REGISTRATION_PATH"  envDefault:"reg.csv"`
	CookiePath       string        `env:"WECHAT_COOKIE_PATH" envDefault:"cookies.json"`
	FakeIDPath       string        `env:"WECHAT_FAKEID_PATH" envDefault:"account_fakeids.json"`
	LogLevel         string        `env:"LOG_LEVEL"          envDefault:"info"`
	LogDir           string        `env:"LOG_DIR"`
	TickInterval     time.Duration `env:"TICK_INTERVAL"      envDefault:"30s"`
	Cooldown         time.Duration `env:"COOLDOWN"           envDefault:"2m"`
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs  []int64       `env:"TELEGRAM_CHAT_IDS"`
}

// Load reads settings from the process environment.
func Load() (*Settings, error) {
	return parse(env.Options{})
}

// LoadFromMap reads settings from the given variables instead of the process
// environment.
func LoadFromMap(vars map[string]string) (*Settings, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch s.DedupBackend {
	case BackendSQLite, BackendJSON:
	default:
		return nil, fmt.Errorf("invalid DEDUP_BACKEND %q: want %s or %s", s.DedupBackend, BackendSQLite, BackendJSON)
	}
	if s.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", s.TickInterval)
	}
	if s.Cooldown < 0 {
		return nil, fmt.Errorf("COOLDOWN must not be negative, got %s", s.Cooldown)
	}
	return &s, nil
}

// TelegramEnabled reports whether alerts should be mirrored to Telegram.
func (s *Settings) TelegramEnabled() bool {
	return s.TelegramBotToken != "" && len(s.TelegramChatIDs) > 0
}
