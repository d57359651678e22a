package config

// Config is the root configuration for both run and serve modes.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Transport TransportConfig  `json:"transport"`
	Dispatch  DispatchConfig   `json:"dispatch"`
	Gateway   GatewayConfig    `json:"gateway,omitempty"`
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TransportConfig controls the messaging transport session.
type TransportConfig struct {
	// StorePath is the sqlite file holding transport credentials.
	// Default: "./blastbot.session.db".
	StorePath string `json:"store_path,omitempty"`

	// CountryCode and TrunkPrefix control phone normalization.
	// Defaults: "62" and "0".
	CountryCode string `json:"country_code,omitempty"`
	TrunkPrefix string `json:"trunk_prefix,omitempty"`

	// ReadyTimeout bounds the wait for the session to authenticate and become
	// ready (QR scanning included). Go duration string, default "3m".
	ReadyTimeout string `json:"ready_timeout,omitempty"`
}

// DispatchConfig holds batch-run defaults.
type DispatchConfig struct {
	// Contacts is the tabular contact file path (run mode).
	Contacts string `json:"contacts,omitempty"`

	// Message is the default message template; "{name}" is substituted with
	// the contact name.
	Message string `json:"message,omitempty"`

	// Delay is the pause between consecutive sends. Go duration string,
	// default "5s". Applied between every pair of sends, never skipped on
	// failure (rate-limit avoidance).
	Delay string `json:"delay,omitempty"`
}

// GatewayConfig controls the HTTP request gateway (serve mode).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	// RatePerSec caps accepted /send requests. Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// TelegramConfig controls the optional admin notification channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// ScheduleConfig defines a recurring batch run (serve mode).
type ScheduleConfig struct {
	Name     string `json:"name"`
	Cron     string `json:"cron"` // robfig/cron spec, e.g. "0 9 * * 1" or "@daily"
	Contacts string `json:"contacts"`
	Message  string `json:"message,omitempty"` // falls back to dispatch.message
	Delay    string `json:"delay,omitempty"`   // falls back to dispatch.delay
}
