package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quietq/internal/journal"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

type fakeSource struct {
	in  journal.Insights
	err error
}

func (f fakeSource) Insights(context.Context) (journal.Insights, error) { return f.in, f.err }

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }
func (a *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	a.to = append(a.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

type target kit.ChatTarget

func (t target) Target() kit.ChatTarget { return kit.ChatTarget(t) }

func TestValidateSpec(t *testing.T) {
	t.Parallel()
	for _, spec := range []string{"", "0 20 * * 0", "@weekly", "30 8 * * 1-5"} {
		if err := ValidateSpec(spec); err != nil {
			t.Fatalf("%q: %v", spec, err)
		}
	}
	for _, spec := range []string{"every sunday", "0 0 20 * * 0", "61 * * * *"} {
		if err := ValidateSpec(spec); err == nil {
			t.Fatalf("%q: expected error", spec)
		}
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Enabled: true, Spec: "nope"}, fakeSource{}, &fakeAdapter{}, target{}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNextRun_DefaultIsSundayEvening(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	s, err := New(Config{Enabled: true, Location: loc}, fakeSource{}, &fakeAdapter{}, target{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// Friday 2025-03-14 12:00 UTC.
	next, ok := s.NextRun(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatalf("expected a next run")
	}
	want := time.Date(2025, 3, 16, 20, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next=%v want %v", next, want)
	}
}

func TestNextRun_Disabled(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, fakeSource{}, &fakeAdapter{}, target{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.NextRun(time.Now()); ok {
		t.Fatalf("disabled digest has no next run")
	}
	s.Start(context.Background())
	s.Stop(context.Background())
}

func TestSend(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	src := fakeSource{in: journal.Insights{TotalThisWeek: 4}}
	s, err := New(Config{Enabled: true}, src, ad, target{ChatID: 42}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.to[0].ChatID != 42 {
		t.Fatalf("sent=%v to=%v", ad.sent, ad.to)
	}
	if !strings.Contains(ad.sent[0], "Entries this week: 4") {
		t.Fatalf("text=%q", ad.sent[0])
	}
}

func TestSend_NoTargetIsSkipped(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s, _ := New(Config{Enabled: true}, fakeSource{}, ad, target{}, logx.Nop())
	if err := s.Send(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestSend_SourceError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s, _ := New(Config{Enabled: true}, fakeSource{err: boom}, &fakeAdapter{}, target{ChatID: 1}, logx.Nop())
	if err := s.Send(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Enabled: true, Location: time.UTC}, fakeSource{}, &fakeAdapter{}, target{}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.Apply(Config{Enabled: true, Spec: "bad", Location: time.UTC}); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.Apply(Config{Enabled: true, Spec: "0 9 * * 1", Location: time.UTC}); err != nil {
		t.Fatal(err)
	}
	next, ok := s.NextRun(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	if !ok || !next.Equal(time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("next=%v ok=%v", next, ok)
	}
	if err := s.Apply(Config{Location: time.UTC}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.NextRun(time.Now()); ok {
		t.Fatalf("disabled after apply")
	}
}
