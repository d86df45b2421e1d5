package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "quietq/pkg/logx"
)

const (
	// MinDelay floors every armed timer to avoid tight re-fire loops.
	MinDelay = time.Second
	// FailureRetry is the re-arm delay after a failed tick.
	FailureRetry = time.Minute

	tickTimeout = 30 * time.Second
)

type Option func(*Scheduler)

// WithClock replaces the wall clock and timers.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLocation sets the zone quiet hours and end-of-day targets are read in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

// WithRearmOnFailure controls what happens when a tick fails (collaborator
// error or panic). Enabled (the default) re-arms after FailureRetry; disabled
// leaves the scheduler idle until the next Start/Refresh.
func WithRearmOnFailure(enabled bool) Option {
	return func(s *Scheduler) { s.rearmOnFailure = enabled }
}

// Scheduler owns the single prompt timer.
type Scheduler struct {
	settings SettingsProvider
	surface  Surface
	clock    Clock
	loc      *time.Location
	log      logx.Logger

	rearmOnFailure bool

	// tickMu serializes ticks with Start/Refresh; both read and write state.
	tickMu sync.Mutex

	mu     sync.Mutex
	runCtx context.Context
	timer  Timer
	gen    uint64
	nextAt time.Time
	state  State
}

func New(settings SettingsProvider, surface Surface, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:       settings,
		surface:        surface,
		clock:          realClock{},
		loc:            time.Local,
		log:            logx.Nop(),
		rearmOnFailure: true,
		runCtx:         context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start arms the first tick. ctx bounds the scheduler's lifetime: once it is
// done, pending ticks become no-ops.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh re-evaluates from scratch, as Start does, so new settings take effect
// immediately. ctx is only used for reading settings.
func (s *Scheduler) Refresh(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	s.cancelLocked()
	st := s.state
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, tickTimeout)
	set, err := s.settings.Settings(rctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("read settings: %w", err)
		s.log.Warn("start failed", logx.Err(err), logx.Bool("rearm", s.rearmOnFailure))
		if s.rearmOnFailure {
			s.armLocked(FailureRetry, "start_failed")
		}
		return err
	}

	var delay time.Duration
	reason := Reason("start")
	if set.EndOfDay() {
		delay, s.state = EndOfDayDelay(set, s.now(), st)
		reason = ReasonEndOfDayWait
	}
	s.armLocked(delay, reason)
	return nil
}

// Snooze postpones the next tick by minutes (at least one), ignoring every
// other rule. The tick after it evaluates normally.
func (s *Scheduler) Snooze(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.armLocked(IntervalDelay(minutes), "snooze")
}

// Stop cancels the pending tick. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.log.Debug("stopped")
	}
	s.cancelLocked()
}

// NextFireAt returns when the pending tick fires; false when idle.
func (s *Scheduler) NextFireAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAt, s.timer != nil
}

// State returns a copy of the scheduler's end-of-day memory.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) now() time.Time { return s.clock.Now().In(s.loc) }

// cancelLocked stops the pending timer and invalidates any tick already in
// flight for it.
func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.nextAt = time.Time{}
}

func (s *Scheduler) armLocked(d time.Duration, reason Reason) {
	s.cancelLocked()
	d = max(d, MinDelay)
	gen := s.gen
	s.nextAt = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() { s.tick(gen) })
	s.log.Debug("armed",
		logx.String("reason", string(reason)),
		logx.Duration("delay", d),
		logx.Time("at", s.nextAt.In(s.loc)),
	)
}

func (s *Scheduler) tick(gen uint64) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	st := s.state
	s.timer = nil
	s.nextAt = time.Time{}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	dec, err := s.evaluate(ctx, st)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error("tick failed", logx.Err(err), logx.Bool("rearm", s.rearmOnFailure))
		if gen == s.gen && s.rearmOnFailure {
			s.armLocked(FailureRetry, "tick_failed")
		}
		return
	}

	s.state = dec.State
	if dec.Action == ActionOpen {
		s.log.Info("prompt opened", logx.Duration("next_in", max(dec.Delay, MinDelay)))
	}
	// Snooze or Stop landed while we were evaluating; theirs is the newer word.
	if gen != s.gen {
		return
	}
	s.armLocked(dec.Delay, dec.Reason)
}

func (s *Scheduler) evaluate(ctx context.Context, st State) (dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	set, err := s.settings.Settings(tctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read settings: %w", err)
	}

	dec = Decide(set, s.now(), s.surface.IsPromptOpen(), st)
	if dec.Action == ActionOpen {
		if err := s.surface.OpenPrompt(tctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return Decision{}, ctx.Err()
			}
			return Decision{}, fmt.Errorf("open prompt: %w", err)
		}
	}
	return dec, nil
}
