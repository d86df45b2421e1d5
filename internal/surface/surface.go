// Package surface shows prompts to the user over a chat transport and turns
// their replies into journal entries.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"quietq/internal/eventbus"
	"quietq/internal/journal"
	"quietq/internal/prompts"
	"quietq/internal/storage"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

const (
	DefaultWindowTTL = 30 * time.Minute

	CallbackSkip         = "qq:skip"
	CallbackSnoozePrefix = "qq:snooze:"

	quickEntryText = "What's on your mind?"
)

var (
	ErrNoTarget  = errors.New("surface: no chat configured")
	ErrNoPrompts = errors.New("surface: no active prompts")
)

// Selector picks the next prompt.
type Selector interface {
	Next(ctx context.Context) (prompts.Choice, bool, error)
}

// Recorder stores answers.
type Recorder interface {
	Record(ctx context.Context, e storage.Entry) (storage.Entry, error)
}

// Window is an open prompt awaiting a reply.
type Window struct {
	Choice   prompts.Choice
	Text     string
	OpenedAt time.Time
	Message  kit.MessageRef
	Quick    bool
}

type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// Surface implements schedule.Surface. At most one window is open at a time.
type Surface struct {
	adapter  kit.Adapter
	selector Selector
	recorder Recorder
	bus      eventbus.Bus
	log      logx.Logger
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	target kit.ChatTarget
	open   *Window
}

func New(adapter kit.Adapter, selector Selector, recorder Recorder, bus eventbus.Bus, log logx.Logger, opt Options) *Surface {
	if opt.TTL <= 0 {
		opt.TTL = DefaultWindowTTL
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Surface{
		adapter:  adapter,
		selector: selector,
		recorder: recorder,
		bus:      bus,
		log:      log.With(logx.String("comp", "surface")),
		ttl:      opt.TTL,
		now:      opt.Now,
	}
}

// SetTarget sets the chat prompts are sent to.
func (s *Surface) SetTarget(to kit.ChatTarget) {
	s.mu.Lock()
	s.target = to
	s.mu.Unlock()
}

func (s *Surface) Target() kit.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// IsPromptOpen reports whether a window is open and not yet expired.
func (s *Surface) IsPromptOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked() != nil
}

// Current returns the open window, if any.
func (s *Surface) Current() (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.currentLocked()
	if w == nil {
		return Window{}, false
	}
	return *w, true
}

func (s *Surface) currentLocked() *Window {
	if s.open == nil {
		return nil
	}
	if s.now().Sub(s.open.OpenedAt) >= s.ttl {
		s.log.Debug("window expired", logx.Time("opened_at", s.open.OpenedAt))
		s.open = nil
		return nil
	}
	return s.open
}

// OpenPrompt selects a prompt and sends it. It does nothing while another
// window is open.
func (s *Surface) OpenPrompt(ctx context.Context) error {
	if s.IsPromptOpen() {
		return nil
	}
	ch, ok, err := s.selector.Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPrompts
	}
	return s.show(ctx, Window{Choice: ch, Text: ch.Text()})
}

// QuickEntry opens a free-form window, replacing any open one.
func (s *Surface) QuickEntry(ctx context.Context) error {
	s.mu.Lock()
	s.open = nil
	s.mu.Unlock()
	return s.show(ctx, Window{Text: quickEntryText, Quick: true})
}

func (s *Surface) show(ctx context.Context, w Window) error {
	to := s.Target()
	if to.ChatID == 0 {
		return ErrNoTarget
	}
	ref, err := s.adapter.SendText(ctx, to, w.Text, &kit.SendOptions{Buttons: Buttons()})
	if err != nil {
		return fmt.Errorf("surface: send prompt: %w", err)
	}
	w.Message = ref
	w.OpenedAt = s.now()

	s.mu.Lock()
	s.open = &w
	s.mu.Unlock()

	s.log.Info("prompt shown",
		logx.Int64("prompt_id", w.Choice.Prompt.ID),
		logx.String("category", string(w.Choice.Prompt.Category)),
		logx.Bool("quick", w.Quick),
	)
	s.publish(eventbus.PromptOpened, w)
	return nil
}

// HandleReply stores text as the answer to the open window. It returns false
// when no window is open.
func (s *Surface) HandleReply(ctx context.Context, text string) (storage.Entry, bool, error) {
	s.mu.Lock()
	w := s.currentLocked()
	s.mu.Unlock()
	if w == nil {
		return storage.Entry{}, false, nil
	}

	clean, project, trait := journal.ExtractTags(text)
	e := storage.Entry{
		Text:       clean,
		ProjectTag: project,
		TraitTag:   trait,
	}
	if !w.Quick {
		e.PromptID = w.Choice.Prompt.ID
		e.PromptText = w.Text
		e.Category = w.Choice.Prompt.Category
		if e.ProjectTag == "" {
			e.ProjectTag = w.Choice.ProjectSuggestion
		}
		e.Meta = map[string]any{"source": "prompt"}
	} else {
		e.Meta = map[string]any{"source": "quick_entry"}
	}

	out, err := s.recorder.Record(ctx, e)
	if err != nil {
		return storage.Entry{}, true, err
	}

	s.mu.Lock()
	if s.open == w {
		s.open = nil
	}
	s.mu.Unlock()
	s.publish(eventbus.PromptAnswered, out)
	return out, true, nil
}

// Dismiss closes the open window without saving. It returns false when none
// was open.
func (s *Surface) Dismiss() bool {
	s.mu.Lock()
	w := s.currentLocked()
	s.open = nil
	s.mu.Unlock()
	if w == nil {
		return false
	}
	s.log.Debug("prompt dismissed", logx.Int64("prompt_id", w.Choice.Prompt.ID))
	s.publish(eventbus.PromptDismissed, *w)
	return true
}

func (s *Surface) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
	}
}

// Buttons are the inline actions attached to every prompt.
func Buttons() [][]kit.Button {
	return [][]kit.Button{{
		{Text: "Skip", Data: CallbackSkip},
		{Text: "Snooze 15m", Data: CallbackSnoozePrefix + "15"},
		{Text: "Snooze 1h", Data: CallbackSnoozePrefix + "60"},
	}}
}

// ParseSnooze extracts the minutes from a snooze callback.
func ParseSnooze(data string) (int, bool) {
	rest, ok := strings.CutPrefix(data, CallbackSnoozePrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
