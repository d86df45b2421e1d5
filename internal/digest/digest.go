// Package digest sends the weekly journal summary on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quietq/internal/journal"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

// DefaultSpec is Sunday at 20:00.
const DefaultSpec = "0 20 * * 0"

const sendTimeout = 30 * time.Second

type Config struct {
	Enabled  bool
	Spec     string
	Location *time.Location
}

type Source interface {
	Insights(ctx context.Context) (journal.Insights, error)
}

// Target reports where to deliver; a zero chat means nowhere yet.
type Target interface {
	Target() kit.ChatTarget
}

type Service struct {
	src     Source
	adapter kit.Adapter
	target  Target
	log     logx.Logger
	parser  cron.Parser

	mu    sync.Mutex
	cfg   Config
	sched cron.Schedule
	c     *cron.Cron
	ctx   context.Context
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a five-field cron expression or a
// descriptor such as @weekly.
func ValidateSpec(spec string) error {
	_, err := parser.Parse(normalizeSpec(spec))
	return err
}

func normalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultSpec
	}
	return spec
}

func New(cfg Config, src Source, adapter kit.Adapter, target Target, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		src:     src,
		adapter: adapter,
		target:  target,
		log:     log.With(logx.String("comp", "digest")),
		parser:  parser,
		ctx:     context.Background(),
	}
	if err := s.setConfigLocked(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) setConfigLocked(cfg Config) error {
	cfg.Spec = normalizeSpec(cfg.Spec)
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	sched, err := s.parser.Parse(cfg.Spec)
	if err != nil {
		return fmt.Errorf("digest spec %q: %w", cfg.Spec, err)
	}
	s.cfg = cfg
	s.sched = sched
	return nil
}

// Start begins triggering. It does nothing when the digest is disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx != nil {
		s.ctx = ctx
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	if s.c != nil || !s.cfg.Enabled {
		if !s.cfg.Enabled {
			s.log.Debug("digest disabled")
		}
		return
	}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	s.c.Schedule(s.sched, cron.FuncJob(s.run))
	s.c.Start()
	s.log.Info("digest scheduled", logx.String("spec", s.cfg.Spec), logx.String("tz", s.cfg.Location.String()))
}

// Stop halts triggering and waits for a running send, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the config, restarting the cron when it was running.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setConfigLocked(cfg); err != nil {
		return err
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if s.ctx.Err() == nil {
		s.startLocked()
	}
	return nil
}

// NextRun returns the next trigger after now; false when disabled.
func (s *Service) NextRun(now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return time.Time{}, false
	}
	return s.sched.Next(now.In(s.cfg.Location)), true
}

func (s *Service) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err := s.Send(ctx); err != nil {
		s.log.Warn("digest failed", logx.Err(err))
	}
}

// Send delivers the current insights now.
func (s *Service) Send(ctx context.Context) error {
	to := s.target.Target()
	if to.ChatID == 0 {
		s.log.Info("digest skipped: no chat yet")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	in, err := s.src.Insights(ctx)
	if err != nil {
		return fmt.Errorf("insights: %w", err)
	}
	text := "Your week in review\n\n" + in.Format()
	if _, err := s.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	s.log.Info("digest sent", logx.Int("entries", in.TotalThisWeek))
	return nil
}

// cronLogger routes cron's own messages (mostly recovered panics) to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
