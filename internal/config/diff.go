package config

import (
	"slices"
	"sort"
	"strings"

	logx "quietq/pkg/logx"
)

// Sections whose changes only take effect after a restart. prompts is read
// once when the scheduler and surface are built.
var restartSections = []string{"prompts", "storage", "transport"}

// SummarizeConfigChange lists the changed sections and log-safe attrs for
// them. Tokens are never included, only whether one is set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	ot, nt := oldCfg.Transport, newCfg.Transport
	if oldCfg.Kind() != newCfg.Kind() ||
		strings.TrimSpace(ot.Telegram.Token) != strings.TrimSpace(nt.Telegram.Token) ||
		!slices.Equal(ot.Telegram.OwnerUserIDs, nt.Telegram.OwnerUserIDs) ||
		ot.Telegram.ChatID != nt.Telegram.ChatID ||
		strings.TrimSpace(ot.Telegram.PollTimeout) != strings.TrimSpace(nt.Telegram.PollTimeout) ||
		ot.Telegram.SendRatePerSec != nt.Telegram.SendRatePerSec {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.kind", newCfg.Kind()),
			logx.Bool("transport.telegram.token_set", strings.TrimSpace(nt.Telegram.Token) != ""),
			logx.Int("transport.telegram.owner_count", len(nt.Telegram.OwnerUserIDs)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.StoragePath() != newCfg.StoragePath() ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.path", newCfg.StoragePath()),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Prompts != newCfg.Prompts {
		changed = append(changed, "prompts")
		attrs = append(attrs,
			logx.String("prompts.timezone", newCfg.Prompts.Timezone),
			logx.String("prompts.window_ttl", newCfg.Prompts.WindowTTL),
			logx.Int("prompts.snooze_default_minutes", newCfg.SnoozeMinutes()),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.spec", newCfg.Digest.Spec),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
			logx.Bool("debug.pprof", newCfg.Debug.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRestart returns the changed sections that are not hot-reloaded.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, c := range changed {
		if slices.Contains(restartSections, c) {
			out = append(out, c)
		}
	}
	return out
}
