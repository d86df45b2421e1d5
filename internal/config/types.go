package config

// Config is the on-disk configuration (JSON or YAML).
//
// Example (YAML):
//
//	transport:
//	  kind: telegram
//	  telegram:
//	    token: "123:abc"
//	    owner_user_ids: [111]
//	logging: { level: info, console: true }
//	storage: { path: ./data/quietq.db }
//	prompts: { timezone: Europe/Berlin }
type Config struct {
	Transport TransportConfig `json:"transport"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Prompts   PromptsConfig   `json:"prompts"`
	Digest    DigestConfig    `json:"digest"`
	Debug     DebugConfig     `json:"debug"`
}

const (
	TransportTelegram = "telegram"
	TransportConsole  = "console"
)

type TransportConfig struct {
	// Kind is "telegram" or "console". Empty picks telegram when a token is
	// set, console otherwise.
	Kind     string         `json:"kind"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID pins where prompts go. Zero means the first owner message decides.
	ChatID int64 `json:"chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout    string  `json:"poll_timeout"`
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings to the prompt chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type PromptsConfig struct {
	// Timezone quiet hours and the end-of-day target are read in. Empty means
	// the host's local zone.
	Timezone             string         `json:"timezone,omitempty"`
	WindowTTL            string         `json:"window_ttl,omitempty"` // Go duration string
	SnoozeDefaultMinutes int            `json:"snooze_default_minutes,omitempty"`
	Defaults             PromptDefaults `json:"defaults"`
}

// PromptDefaults seed the settings row on first run only; after that the row
// is edited through chat commands.
type PromptDefaults struct {
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`
}

type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"`
}

// DebugConfig controls the optional local HTTP endpoint (health, status and
// pprof). Non-loopback addresses need a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
