package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quietq/internal/eventbus"
	"quietq/internal/prompts"
	"quietq/internal/storage"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, sentMsg{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

type fixedSelector struct {
	choice prompts.Choice
	ok     bool
}

func (f fixedSelector) Next(context.Context) (prompts.Choice, bool, error) {
	return f.choice, f.ok, nil
}

type memRecorder struct {
	entries []storage.Entry
}

func (m *memRecorder) Record(_ context.Context, e storage.Entry) (storage.Entry, error) {
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e, nil
}

var gardenChoice = prompts.Choice{
	Prompt: storage.Prompt{
		ID:              3,
		Text:            "What progress did you make today on [PROJECT]?",
		Category:        storage.CategoryProject,
		RequiresProject: true,
	},
	ProjectSuggestion: "garden",
}

type harness struct {
	s   *Surface
	ad  *fakeAdapter
	rec *memRecorder
	bus eventbus.Bus
	now *time.Time
}

func newHarness(t *testing.T, sel Selector) harness {
	t.Helper()
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	h := harness{ad: &fakeAdapter{}, rec: &memRecorder{}, bus: eventbus.New(), now: &now}
	h.s = New(h.ad, sel, h.rec, h.bus, logx.Nop(), Options{
		TTL: 30 * time.Minute,
		Now: func() time.Time { return *h.now },
	})
	h.s.SetTarget(kit.ChatTarget{ChatID: 99})
	return h
}

func TestOpenPromptSendsOnceUntilAnswered(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedSelector{choice: gardenChoice, ok: true})
	opened, unsub := h.bus.Subscribe(4, eventbus.PromptOpened)
	defer unsub()
	ctx := context.Background()

	if err := h.s.OpenPrompt(ctx); err != nil {
		t.Fatalf("OpenPrompt: %v", err)
	}
	if err := h.s.OpenPrompt(ctx); err != nil {
		t.Fatalf("OpenPrompt again: %v", err)
	}
	if len(h.ad.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(h.ad.sent))
	}
	msg := h.ad.sent[0]
	if msg.to.ChatID != 99 || msg.text != "What progress did you make today on garden?" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.opt.Buttons) != 1 || len(msg.opt.Buttons[0]) != 3 {
		t.Fatalf("buttons = %+v", msg.opt.Buttons)
	}
	if !h.s.IsPromptOpen() || len(opened) != 1 {
		t.Fatal("window not marked open")
	}

	e, ok, err := h.s.HandleReply(ctx, "weeded the beds #trait:patience")
	if err != nil || !ok {
		t.Fatalf("HandleReply = %v, %v", ok, err)
	}
	if e.Text != "weeded the beds" || e.ProjectTag != "garden" || e.TraitTag != "patience" || e.Category != storage.CategoryProject || e.PromptID != 3 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if h.s.IsPromptOpen() {
		t.Fatal("window still open after reply")
	}
	if _, ok, _ := h.s.HandleReply(ctx, "stray text"); ok {
		t.Fatal("reply accepted with no open window")
	}
}

func TestWindowExpires(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedSelector{choice: gardenChoice, ok: true})
	if err := h.s.OpenPrompt(context.Background()); err != nil {
		t.Fatalf("OpenPrompt: %v", err)
	}
	*h.now = h.now.Add(29 * time.Minute)
	if !h.s.IsPromptOpen() {
		t.Fatal("window closed before TTL")
	}
	*h.now = h.now.Add(time.Minute)
	if h.s.IsPromptOpen() {
		t.Fatal("window open after TTL")
	}
}

func TestDismissAndQuickEntry(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fixedSelector{choice: gardenChoice, ok: true})
	ctx := context.Background()
	if h.s.Dismiss() {
		t.Fatal("Dismiss reported an open window")
	}
	if err := h.s.OpenPrompt(ctx); err != nil {
		t.Fatalf("OpenPrompt: %v", err)
	}
	if !h.s.Dismiss() || h.s.IsPromptOpen() {
		t.Fatal("Dismiss did not close the window")
	}

	if err := h.s.QuickEntry(ctx); err != nil {
		t.Fatalf("QuickEntry: %v", err)
	}
	w, ok := h.s.Current()
	if !ok || !w.Quick || w.Text != quickEntryText {
		t.Fatalf("Current = %+v, %v", w, ok)
	}
	e, _, err := h.s.HandleReply(ctx, "random thought #project:album")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if e.PromptID != 0 || e.ProjectTag != "album" || e.Meta["source"] != "quick_entry" {
		t.Fatalf("unexpected quick entry: %+v", e)
	}
}

func TestOpenPromptErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, fixedSelector{})
	if err := h.s.OpenPrompt(ctx); !errors.Is(err, ErrNoPrompts) {
		t.Fatalf("empty catalogue err = %v", err)
	}

	h = newHarness(t, fixedSelector{choice: gardenChoice, ok: true})
	h.s.SetTarget(kit.ChatTarget{})
	if err := h.s.OpenPrompt(ctx); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("no target err = %v", err)
	}

	h = newHarness(t, fixedSelector{choice: gardenChoice, ok: true})
	h.ad.err = errors.New("network down")
	if err := h.s.OpenPrompt(ctx); err == nil {
		t.Fatal("send failure not reported")
	}
	if h.s.IsPromptOpen() {
		t.Fatal("window opened although send failed")
	}
}

func TestParseSnooze(t *testing.T) {
	t.Parallel()
	if n, ok := ParseSnooze("qq:snooze:15"); !ok || n != 15 {
		t.Fatalf("ParseSnooze = %d, %v", n, ok)
	}
	for _, bad := range []string{"qq:snooze:", "qq:snooze:-3", "qq:skip", "qq:snooze:abc"} {
		if _, ok := ParseSnooze(bad); ok {
			t.Fatalf("ParseSnooze(%q) accepted", bad)
		}
	}
}
