package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"quietq/internal/journal"
	"quietq/internal/runtime/supervisor"
	"quietq/internal/schedule"
	"quietq/internal/settings"
	"quietq/internal/storage"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

const owner int64 = 7

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	answers map[string]string
	menu    []kit.BotCommand
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.answers == nil {
		a.answers = map[string]string{}
	}
	a.answers[id] = text
	return nil
}

func (a *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.menu = cmds
	return nil
}

func (a *fakeAdapter) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].text
}

type fakeScheduler struct {
	snoozed []int
	next    time.Time
}

func (s *fakeScheduler) Snooze(m int) { s.snoozed = append(s.snoozed, m) }
func (s *fakeScheduler) NextFireAt() (time.Time, bool) {
	return s.next, !s.next.IsZero()
}

type fakeSettings struct{ row storage.Settings }

func (s *fakeSettings) Get(context.Context) (storage.Settings, error) { return s.row, nil }

func (s *fakeSettings) Update(_ context.Context, p storage.SettingsPatch) (storage.Settings, error) {
	if err := settings.Validate(p); err != nil {
		return storage.Settings{}, err
	}
	if p.PromptIntervalMinutes != nil {
		s.row.PromptIntervalMinutes = *p.PromptIntervalMinutes
	}
	if p.QuietHoursStart != nil {
		s.row.QuietHoursStart = *p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil {
		s.row.QuietHoursEnd = *p.QuietHoursEnd
	}
	if p.IsPaused != nil {
		s.row.IsPaused = *p.IsPaused
	}
	return s.row, nil
}

func (s *fakeSettings) Pause(ctx context.Context) (storage.Settings, error) {
	v := true
	return s.Update(ctx, storage.SettingsPatch{IsPaused: &v})
}

func (s *fakeSettings) Resume(ctx context.Context) (storage.Settings, error) {
	v := false
	return s.Update(ctx, storage.SettingsPatch{IsPaused: &v})
}

type fakeSurface struct {
	target  kit.ChatTarget
	open    bool
	quick   int
	replies []string
	nextID  int64
	panics  bool
}

func (s *fakeSurface) SetTarget(to kit.ChatTarget) { s.target = to }
func (s *fakeSurface) Target() kit.ChatTarget      { return s.target }
func (s *fakeSurface) IsPromptOpen() bool          { return s.open }

func (s *fakeSurface) QuickEntry(context.Context) error {
	if s.panics {
		panic("boom")
	}
	s.quick++
	s.open = true
	return nil
}

func (s *fakeSurface) HandleReply(_ context.Context, text string) (storage.Entry, bool, error) {
	if !s.open {
		return storage.Entry{}, false, nil
	}
	clean, project, _ := journal.ExtractTags(text)
	if clean == "" {
		return storage.Entry{}, true, journal.ErrEmptyText
	}
	s.open = false
	s.replies = append(s.replies, clean)
	s.nextID++
	return storage.Entry{ID: s.nextID, Text: clean, ProjectTag: project}, true, nil
}

func (s *fakeSurface) Dismiss() bool {
	was := s.open
	s.open = false
	return was
}

type fakeJournal struct {
	entries []storage.Entry
	tags    map[storage.TagKind][]string
}

func (j *fakeJournal) List(_ context.Context, f storage.EntryFilter) ([]storage.Entry, int, error) {
	n := min(f.Limit, len(j.entries))
	return j.entries[:n], len(j.entries), nil
}

func (j *fakeJournal) Delete(_ context.Context, id int64) error {
	for i, e := range j.entries {
		if e.ID == id {
			j.entries = append(j.entries[:i], j.entries[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (j *fakeJournal) LastEntryAt(context.Context) (time.Time, bool, error) {
	if len(j.entries) == 0 {
		return time.Time{}, false, nil
	}
	return j.entries[0].CreatedAt, true, nil
}

func (j *fakeJournal) Tags(_ context.Context, kind storage.TagKind) ([]storage.Tag, error) {
	var out []storage.Tag
	for _, n := range j.tags[kind] {
		out = append(out, storage.Tag{Name: n})
	}
	return out, nil
}

func (j *fakeJournal) AddTag(_ context.Context, kind storage.TagKind, name string) (storage.Tag, error) {
	if j.tags == nil {
		j.tags = map[storage.TagKind][]string{}
	}
	j.tags[kind] = append(j.tags[kind], name)
	return storage.Tag{Name: name}, nil
}

func (j *fakeJournal) RenameTag(_ context.Context, kind storage.TagKind, oldName, newName string) (storage.Tag, error) {
	for i, n := range j.tags[kind] {
		if n == oldName {
			j.tags[kind][i] = newName
			return storage.Tag{Name: newName}, nil
		}
	}
	return storage.Tag{}, storage.ErrNotFound
}

func (j *fakeJournal) RemoveTag(_ context.Context, kind storage.TagKind, name string) error {
	for i, n := range j.tags[kind] {
		if n == name {
			j.tags[kind] = append(j.tags[kind][:i], j.tags[kind][i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (j *fakeJournal) Insights(context.Context) (journal.Insights, error) {
	return journal.Insights{TotalThisWeek: len(j.entries)}, nil
}

type harness struct {
	r    *Router
	ad   *fakeAdapter
	sch  *fakeScheduler
	set  *fakeSettings
	surf *fakeSurface
	jr   *fakeJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ad:   &fakeAdapter{},
		sch:  &fakeScheduler{},
		set:  &fakeSettings{row: storage.Settings{PromptIntervalMinutes: 90, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}},
		surf: &fakeSurface{},
		jr:   &fakeJournal{},
	}
	h.r = New(h.ad, Services{
		Scheduler: h.sch,
		Settings:  h.set,
		Surface:   h.surf,
		Journal:   h.jr,
	}, logx.Nop(), Options{Owners: []int64{owner}, Location: time.UTC})
	return h
}

func (h *harness) say(text string) string {
	h.r.Handle(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ChatID: 100, FromID: owner, Text: text},
	})
	return h.ad.last()
}

func (h *harness) press(id, data string, from int64) string {
	h.r.Handle(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: id, ChatID: 100, FromID: from, Data: data},
	})
	return h.ad.answers[id]
}

func TestRouter_IgnoresNonOwners(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.r.Handle(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ChatID: 100, FromID: 99, Text: "/pause"},
	})
	if len(h.ad.sent) != 0 || h.set.row.IsPaused {
		t.Fatalf("non-owner must be ignored")
	}
	if got := h.press("c1", "qq:skip", 99); got != "unauthorized" {
		t.Fatalf("callback answer=%q", got)
	}
}

func TestRouter_FirstMessageSetsTarget(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say("/help")
	if h.surf.target.ChatID != 100 {
		t.Fatalf("target=%+v", h.surf.target)
	}
	h.surf.target = kit.ChatTarget{ChatID: 5}
	h.say("/help")
	if h.surf.target.ChatID != 5 {
		t.Fatalf("later messages must not move the target")
	}
	h.say("/start")
	if h.surf.target.ChatID != 100 {
		t.Fatalf("/start should move the target")
	}
}

func TestRouter_UnknownCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if got := h.say("/nope"); !strings.Contains(got, "/help") {
		t.Fatalf("got %q", got)
	}
}

func TestRouter_Snooze(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.surf.open = true
	if got := h.say("/snooze"); got != "Snoozed for 15m." {
		t.Fatalf("got %q", got)
	}
	if h.surf.open {
		t.Fatalf("snooze should close the open prompt")
	}
	if got := h.say("/snooze@quietq_bot 90"); got != "Snoozed for 1h30m." {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/snooze soon"); !strings.HasPrefix(got, "Usage") {
		t.Fatalf("got %q", got)
	}
	if len(h.sch.snoozed) != 2 || h.sch.snoozed[0] != 15 || h.sch.snoozed[1] != 90 {
		t.Fatalf("snoozed=%v", h.sch.snoozed)
	}
}

func TestRouter_IntervalAndQuiet(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if got := h.say("/interval eod"); got != "Interval: end of day" {
		t.Fatalf("got %q", got)
	}
	if h.set.row.PromptIntervalMinutes != schedule.EndOfDayInterval {
		t.Fatalf("interval=%d", h.set.row.PromptIntervalMinutes)
	}
	if got := h.say("/interval 0"); !strings.Contains(got, "positive") {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/interval 45"); got != "Interval: 45m" {
		t.Fatalf("got %q", got)
	}

	if got := h.say("/quiet 23:00 06:30"); got != "Quiet hours: 23:00 to 06:30" {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/quiet 25:00 06:30"); !strings.Contains(got, "not HH:MM") {
		t.Fatalf("invalid clock should be explained, got %q", got)
	}
	if got := h.say("/quiet off"); got != "Quiet hours: off" {
		t.Fatalf("got %q", got)
	}
}

func TestRouter_PauseResumeSettings(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say("/pause")
	if !h.set.row.IsPaused {
		t.Fatalf("not paused")
	}
	got := h.say("/settings")
	if !strings.Contains(got, "Interval: 90m") || !strings.Contains(got, "Paused: yes") {
		t.Fatalf("settings=%q", got)
	}
	h.say("/resume")
	if h.set.row.IsPaused {
		t.Fatalf("still paused")
	}
}

func TestRouter_Replies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if got := h.say("just thinking"); !strings.Contains(got, "/prompt") {
		t.Fatalf("closed window hint, got %q", got)
	}

	h.say("/prompt")
	if h.surf.quick != 1 || !h.surf.open {
		t.Fatalf("quick entry not opened")
	}
	if got := h.say("/prompt"); !strings.Contains(got, "already open") {
		t.Fatalf("got %q", got)
	}
	if got := h.say("   #project:quietq   "); !strings.Contains(got, "required") {
		t.Fatalf("empty text should be rejected, got %q", got)
	}
	if got := h.say("Shipped the scheduler #project:quietq"); got != "Saved #1. Project: quietq." {
		t.Fatalf("got %q", got)
	}
	if len(h.surf.replies) != 1 || h.surf.replies[0] != "Shipped the scheduler" {
		t.Fatalf("replies=%v", h.surf.replies)
	}
}

func TestRouter_Callbacks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if got := h.press("a", "qq:skip", owner); got != "Nothing to skip." {
		t.Fatalf("got %q", got)
	}
	h.surf.open = true
	if got := h.press("b", "qq:skip", owner); got != "Skipped." {
		t.Fatalf("got %q", got)
	}
	h.surf.open = true
	if got := h.press("c", "qq:snooze:60", owner); got != "Snoozed for 1h" {
		t.Fatalf("got %q", got)
	}
	if h.surf.open || len(h.sch.snoozed) != 1 || h.sch.snoozed[0] != 60 {
		t.Fatalf("open=%v snoozed=%v", h.surf.open, h.sch.snoozed)
	}
	h.press("d", "qq:snooze:-3", owner)
	h.press("e", "other", owner)
	if len(h.sch.snoozed) != 1 {
		t.Fatalf("bad payloads must not snooze")
	}
}

func TestRouter_EntriesAndDelete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if got := h.say("/entries"); got != "No entries yet." {
		t.Fatalf("got %q", got)
	}
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	h.jr.entries = []storage.Entry{
		{ID: 2, CreatedAt: at, Category: storage.CategorySmallWin, ProjectTag: "quietq", Text: "fixed   the\nbuild"},
		{ID: 1, CreatedAt: at.Add(-time.Hour), Text: strings.Repeat("x", 200)},
	}
	got := h.say("/entries 1")
	if !strings.HasPrefix(got, "Latest 1 of 2:") || !strings.Contains(got, "#2 Mar 14 09:30 [small_win #quietq] fixed the build") {
		t.Fatalf("got %q", got)
	}
	got = h.say("/entries")
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long text should be truncated: %q", got)
	}

	if got := h.say("/delete 9"); got != "Entry #9 not found." {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/delete #2"); got != "Deleted #2." {
		t.Fatalf("got %q", got)
	}
	if len(h.jr.entries) != 1 {
		t.Fatalf("entries=%d", len(h.jr.entries))
	}
}

func TestRouter_Tags(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if got := h.say("/projects"); got != "No projects yet." {
		t.Fatalf("got %q", got)
	}
	h.say("/projects add quietq")
	h.say("/projects add side quest")
	if got := h.say("/projects"); got != "quietq\nside quest" {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/projects mv quietq qq"); got != "Renamed to qq." {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/projects rm nothing"); got != "nothing not found." {
		t.Fatalf("got %q", got)
	}
	if got := h.say("/traits add"); !strings.HasPrefix(got, "Usage: /traits") {
		t.Fatalf("got %q", got)
	}
	h.say("/projects rm side quest")
	if got := h.jr.tags[storage.TagProject]; len(got) != 1 || got[0] != "qq" {
		t.Fatalf("tags=%v", got)
	}
}

func TestRouter_Status(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if got := h.say("/status"); !strings.Contains(got, "not scheduled") || !strings.Contains(got, "none yet") {
		t.Fatalf("got %q", got)
	}
	h.sch.next = time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)
	h.surf.open = true
	h.r.serv.Supervisors = func() map[string]supervisor.Counters {
		return map[string]supervisor.Counters{"app": {Active: 3, Restarts: 1}}
	}
	got := h.say("/status")
	for _, want := range []string{"Next check: Fri 21:00", "waiting for your answer", "app: active=3 restarts=1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status missing %q: %q", want, got)
		}
	}
}

func TestRouter_PanicIsReported(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.surf.panics = true
	if got := h.say("/prompt"); !strings.HasPrefix(got, "Something went wrong") {
		t.Fatalf("got %q", got)
	}
}

func TestRouter_PublishMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if err := h.r.PublishMenu(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.ad.menu) != len(h.r.Commands()) || h.ad.menu[0].Command != "start" {
		t.Fatalf("menu=%+v", h.ad.menu)
	}
}

func TestRouter_RunStopsOnClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ch := make(chan kit.Update, 1)
	ch <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: owner, Text: "/help"}}
	close(ch)
	if err := h.r.Run(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h.ad.last(), "Commands:") {
		t.Fatalf("got %q", h.ad.last())
	}
}
