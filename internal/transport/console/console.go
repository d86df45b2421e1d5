// Package console is an offline transport: stdin lines become messages and
// outgoing text is printed. Buttons are rendered as numbered hints; typing
// "!2" presses the second one.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"quietq/internal/runtime/supervisor"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

const (
	// ChatID is the only chat the console knows about.
	ChatID int64 = 1
	// UserID is the sender of every stdin line.
	UserID int64 = 1
)

type Adapter struct {
	in  io.Reader
	out io.Writer
	log logx.Logger

	mu      sync.Mutex
	nextID  int
	buttons []kit.Button
	running bool
	sup     *supervisor.Supervisor
	lines   chan string
}

func New(in io.Reader, out io.Writer, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{in: in, out: out, log: log}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(false))
	sup := a.sup
	if a.lines == nil {
		a.lines = make(chan string)
		// Reads cannot be interrupted; the scanner lives until EOF and
		// survives Stop/Start cycles.
		go a.scan(a.lines)
	}
	lines := a.lines
	a.mu.Unlock()

	sup.Go0("console.read", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case line, ok := <-lines:
				if !ok {
					a.log.Info("console input closed")
					return
				}
				up, ok := a.parse(line)
				if !ok {
					continue
				}
				select {
				case out <- up:
				case <-c.Done():
					return
				}
			}
		}
	})
	return nil
}

func (a *Adapter) scan(lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		a.log.Warn("console read failed", logx.Err(err))
	}
}

func (a *Adapter) parse(line string) (kit.Update, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return kit.Update{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	if rest, ok := strings.CutPrefix(line, "!"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			if n < 1 || n > len(a.buttons) {
				fmt.Fprintf(a.out, "no button %d\n", n)
				return kit.Update{}, false
			}
			return kit.Update{
				Kind: kit.UpdateCallback,
				Callback: &kit.Callback{
					ID:     strconv.Itoa(a.nextID),
					FromID: UserID,
					ChatID: ChatID,
					Data:   a.buttons[n-1].Data,
				},
			}, true
		}
	}
	return kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:           a.nextID,
			ChatID:       ChatID,
			FromID:       UserID,
			FromUsername: "console",
			Text:         line,
		},
	}, true
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.running = false
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (a *Adapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteByte('\n')

	if opt != nil && len(opt.Buttons) > 0 {
		a.buttons = a.buttons[:0]
		var hints []string
		for _, row := range opt.Buttons {
			for _, btn := range row {
				a.buttons = append(a.buttons, btn)
				hints = append(hints, fmt.Sprintf("[!%d] %s", len(a.buttons), btn.Text))
			}
		}
		b.WriteString("  ")
		b.WriteString(strings.Join(hints, "  "))
		b.WriteByte('\n')
	}

	if _, err := io.WriteString(a.out, b.String()); err != nil {
		return kit.MessageRef{}, err
	}
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *Adapter) AnswerCallback(_ context.Context, _ string, text string) error {
	if text == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.out, "· %s\n", text)
	return err
}
