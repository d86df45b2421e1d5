// Package app wires quietq together: config, logging, storage, the prompt
// scheduler and the chat transport, all run under one supervisor.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"quietq/internal/config"
	"quietq/internal/digest"
	"quietq/internal/eventbus"
	"quietq/internal/journal"
	"quietq/internal/observability/debughttp"
	"quietq/internal/observability/metrics"
	"quietq/internal/prompts"
	"quietq/internal/router"
	"quietq/internal/runtime/supervisor"
	"quietq/internal/schedule"
	"quietq/internal/settings"
	"quietq/internal/storage"
	"quietq/internal/surface"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

// Options override process I/O, for tests and the console transport.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.Store

	adapter  kit.Adapter
	settings *settings.Service
	journal  *journal.Service
	surface  *surface.Surface
	sched    *schedule.Scheduler
	router   *router.Router
	digest   *digest.Service
	debug    *debughttp.Service
	metrics  *metrics.Metrics

	loc     *time.Location
	updates chan kit.Update
}

func New(ctx context.Context, cfgPath string, opt Options) (*App, error) {
	if opt.Stdin == nil {
		opt.Stdin = os.Stdin
	}
	if opt.Stdout == nil {
		opt.Stdout = os.Stdout
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ttl, err := windowTTL(cfg)
	if err != nil {
		return nil, err
	}
	storeCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")
	tr, err := buildTransport(cfg, opt.Stdin, opt.Stdout, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg), tr.adapter)
	logSvc.SetChatTarget(tr.target)

	store, err := storage.Open(ctx, storeCfg, mapDefaults(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("path", storeCfg.Path))

	bus := eventbus.New()
	settingsSvc := settings.New(store, bus, log)
	journalSvc := journal.New(store, loc, log)
	selector := prompts.NewSelector(store, prompts.WithLocation(loc))

	surf := surface.New(tr.adapter, selector, journalSvc, bus, log, surface.Options{TTL: ttl})
	surf.SetTarget(tr.target)

	sched := schedule.New(settingsSvc, surf,
		schedule.WithLocation(loc),
		schedule.WithLogger(log.With(logx.String("comp", "scheduler"))),
	)

	dg, err := digest.New(mapDigest(cfg, loc), journalSvc, tr.adapter, surf, log)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  tr.adapter,
		settings: settingsSvc,
		journal:  journalSvc,
		surface:  surf,
		sched:    sched,
		digest:   dg,
		loc:      loc,
		updates:  make(chan kit.Update, 64),
	}
	a.router = router.New(tr.adapter, router.Services{
		Scheduler:   sched,
		Settings:    settingsSvc,
		Surface:     surf,
		Journal:     journalSvc,
		Supervisors: a.supervisorCounters,
	}, log, router.Options{
		Owners:        tr.owners,
		SnoozeDefault: cfg.SnoozeMinutes(),
		Location:      loc,
	})
	a.metrics = metrics.New(metrics.Probes{
		PromptOpen: surf.IsPromptOpen,
		NextFireAt: sched.NextFireAt,
		Dropped:    bus.Dropped,
	})
	a.debug = debughttp.New(mapDebug(cfg), a.status, log)
	a.debug.SetMetrics(a.metrics.Handler())
	return a, nil
}

type statusSnapshot struct {
	NextCheck     *time.Time                     `json:"next_check,omitempty"`
	PromptOpen    bool                           `json:"prompt_open"`
	Paused        bool                           `json:"paused"`
	Interval      string                         `json:"interval"`
	QuietHours    string                         `json:"quiet_hours"`
	LastEntry     *time.Time                     `json:"last_entry,omitempty"`
	EventsDropped uint64                         `json:"events_dropped"`
	Supervisors   map[string]supervisor.Counters `json:"supervisors"`
}

func (a *App) status(ctx context.Context) (any, error) {
	row, err := a.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	st := statusSnapshot{
		PromptOpen:    a.surface.IsPromptOpen(),
		Paused:        row.IsPaused,
		Interval:      settings.IntervalLabel(row.PromptIntervalMinutes),
		QuietHours:    row.QuietHoursStart + "-" + row.QuietHoursEnd,
		EventsDropped: a.bus.Dropped(),
		Supervisors:   a.supervisorCounters(),
	}
	if at, ok := a.sched.NextFireAt(); ok {
		at = at.In(a.loc)
		st.NextCheck = &at
	}
	last, ok, err := a.journal.LastEntryAt(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		last = last.In(a.loc)
		st.LastEntry = &last
	}
	return st, nil
}

// Done is closed when the app supervisor is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) supervisorCounters() map[string]supervisor.Counters {
	out := map[string]supervisor.Counters{}
	if a.sup != nil {
		out["app"] = a.sup.Counters()
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		if s := sp.Supervisor(); s != nil {
			out["transport"] = s.Counters()
		}
	}
	if a.debug != nil {
		if s := a.debug.Supervisor(); s != nil {
			out["debughttp"] = s.Counters()
		}
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Digest.Enabled {
			if err := digest.ValidateSpec(cfg.Digest.Spec); err != nil {
				return fmt.Errorf("digest.spec: %w", err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(run, a.updates); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	a.sup.Go0("router.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.router.PublishMenu(mctx); err != nil {
			a.log.Warn("publish command menu failed", logx.Err(err))
		}
	})
	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	// Settings edits take effect immediately.
	settingsCh, unsubSettings := a.bus.Subscribe(8, eventbus.SettingsUpdated)
	a.sup.Go0("scheduler.refresh", func(c context.Context) {
		defer unsubSettings()
		for {
			select {
			case <-c.Done():
				return
			case _, ok := <-settingsCh:
				if !ok {
					return
				}
				if err := a.sched.Refresh(c); err != nil {
					a.log.Warn("scheduler refresh failed", logx.Err(err))
				}
			}
		}
	})

	events, unsubEvents := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.metrics.Observe(e)
				if e.Type == eventbus.PromptOpened {
					// The prompt chat may have been picked by /start.
					a.logs.SetChatTarget(a.surface.Target())
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if err := a.sched.Start(run); err != nil {
		// The scheduler re-arms itself after a failed start.
		a.log.Warn("scheduler start failed", logx.Err(err))
	}
	a.digest.Start(run)
	a.debug.Start(run)

	cfgCh := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgCh)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	next, _ := a.sched.NextFireAt()
	a.log.Info("app started", logx.Time("next_check", next.In(a.loc)))
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if r := config.NeedsRestart(sections); len(r) > 0 {
		a.log.Warn("config changed; restart required for these sections", logx.String("sections", strings.Join(r, ",")))
	}

	a.logs.Apply(mapLogging(next))
	if err := a.digest.Apply(mapDigest(next, a.loc)); err != nil {
		a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
	}
	a.debug.Reconfigure(a.sup.Context(), mapDebug(next))

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "scheduler", time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	a.step(ctx, "digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	a.step(ctx, "debughttp", 3*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "transport", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline, so a
// stuck component cannot stall the rest.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline passed)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
