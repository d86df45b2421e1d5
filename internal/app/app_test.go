package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", filepath.ToSlash(dir))
	path := filepath.Join(dir, "quietq.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, buf.String())
}

func TestConsoleAppAnswersCommands(t *testing.T) {
	path := writeConfig(t, `{
		"transport": {"kind": "console"},
		"logging": {"level": "error"},
		"storage": {"path": "$DIR/j.db"},
		"prompts": {"timezone": "UTC"}
	}`)

	inR, inW := io.Pipe()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, path, Options{Stdin: inR, Stdout: out})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = inW.Close()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := a.Stop(stopCtx, StopSignal); err != nil {
			t.Errorf("stop: %v", err)
		}
	})

	if _, ok := a.sched.NextFireAt(); !ok {
		t.Fatalf("scheduler not armed after start")
	}

	if _, err := io.WriteString(inW, "/settings\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, out, "Interval: 90m")
	waitFor(t, out, "Quiet hours: 22:00")

	if _, err := io.WriteString(inW, "/interval 45\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, out, "Interval: 45m")

	row, err := a.settings.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if row.PromptIntervalMinutes != 45 {
		t.Fatalf("interval=%d", row.PromptIntervalMinutes)
	}
}

func TestNewSeedsConfiguredDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"transport": {"kind": "console"},
		"logging": {"level": "error"},
		"storage": {"path": "$DIR/j.db"},
		"prompts": {"defaults": {"interval_minutes": -1, "quiet_hours_start": "23:30"}}
	}`)

	ctx := context.Background()
	a, err := New(ctx, path, Options{Stdin: strings.NewReader(""), Stdout: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	defer a.store.Close()
	defer a.logs.Close()

	row, err := a.settings.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if row.PromptIntervalMinutes != -1 || row.QuietHoursStart != "23:30" || row.QuietHoursEnd != "07:00" {
		t.Fatalf("settings=%+v", row)
	}

	v, err := a.status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	st := v.(statusSnapshot)
	if st.Interval != "end of day" || st.QuietHours != "23:30-07:00" || st.NextCheck != nil || st.LastEntry != nil {
		t.Fatalf("status=%+v", st)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"digest spec": `{"transport": {"kind": "console"}, "storage": {"path": "$DIR/j.db"},
			"digest": {"enabled": true, "spec": "every tuesday"}}`,
		"timezone":    `{"transport": {"kind": "console"}, "prompts": {"timezone": "Mars/Olympus"}}`,
		"telegram":    `{"transport": {"kind": "telegram"}}`,
		"unknown key": `{"transport": {"kind": "console"}, "nope": 1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, body)
			if _, err := New(context.Background(), path, Options{Stdin: strings.NewReader(""), Stdout: io.Discard}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	a := &App{}
	if err := a.Stop(context.Background(), StopUnknown); err != nil {
		t.Fatal(err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed when never started")
	}
}
