package app

import (
	"io"
	"strings"
	"time"

	"quietq/internal/config"
	"quietq/internal/digest"
	"quietq/internal/observability/debughttp"
	"quietq/internal/storage"
	kit "quietq/internal/transport"
	"quietq/internal/transport/console"
	"quietq/internal/transport/telegram"
	logx "quietq/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: cfg.StoragePath(), BusyTimeout: busy}, nil
}

// mapDefaults fills unset prompt defaults from storage.DefaultSettings.
func mapDefaults(cfg *config.Config) storage.Settings {
	out := storage.DefaultSettings
	d := cfg.Prompts.Defaults
	if d.IntervalMinutes != 0 {
		out.PromptIntervalMinutes = d.IntervalMinutes
	}
	if strings.TrimSpace(d.QuietHoursStart) != "" {
		out.QuietHoursStart = strings.TrimSpace(d.QuietHoursStart)
	}
	if strings.TrimSpace(d.QuietHoursEnd) != "" {
		out.QuietHoursEnd = strings.TrimSpace(d.QuietHoursEnd)
	}
	return out
}

func mapDigest(cfg *config.Config, loc *time.Location) digest.Config {
	return digest.Config{Enabled: cfg.Digest.Enabled, Spec: cfg.Digest.Spec, Location: loc}
}

func mapDebug(cfg *config.Config) debughttp.Config {
	d := cfg.Debug
	return debughttp.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
}

func windowTTL(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("prompts.window_ttl", cfg.Prompts.WindowTTL, 0)
}

// transport bundles the adapter with who may talk to it and where prompts go
// until an owner says otherwise.
type transport struct {
	adapter kit.Adapter
	owners  []int64
	target  kit.ChatTarget
}

func buildTransport(cfg *config.Config, in io.Reader, out io.Writer, log logx.Logger) (transport, error) {
	if cfg.Kind() == config.TransportConsole {
		return transport{
			adapter: console.New(in, out, log.With(logx.String("comp", "console"))),
			owners:  []int64{console.UserID},
			target:  kit.ChatTarget{ChatID: console.ChatID},
		}, nil
	}
	poll, err := config.ParseDurationOrDefault("transport.telegram.poll_timeout", cfg.Transport.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return transport{}, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:          cfg.Transport.Telegram.Token,
		PollTimeout:    poll,
		SendRatePerSec: cfg.Transport.Telegram.SendRatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return transport{}, err
	}
	return transport{
		adapter: ad,
		owners:  append([]int64(nil), cfg.Transport.Telegram.OwnerUserIDs...),
		target:  kit.ChatTarget{ChatID: cfg.Transport.Telegram.ChatID},
	}, nil
}
