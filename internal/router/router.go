// Package router turns chat updates into journal actions: slash commands,
// inline-button callbacks, and free text answering an open prompt.
//
// Every update is owner-only; quietq is a single-user journal.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"quietq/internal/journal"
	"quietq/internal/runtime/supervisor"
	"quietq/internal/storage"
	"quietq/internal/surface"
	kit "quietq/internal/transport"
	logx "quietq/pkg/logx"
)

const (
	defaultTimeout = 15 * time.Second
	defaultSnooze  = 15
)

// Scheduler is the part of the prompt scheduler the router drives.
type Scheduler interface {
	Snooze(minutes int)
	NextFireAt() (time.Time, bool)
}

type Settings interface {
	Get(ctx context.Context) (storage.Settings, error)
	Update(ctx context.Context, patch storage.SettingsPatch) (storage.Settings, error)
	Pause(ctx context.Context) (storage.Settings, error)
	Resume(ctx context.Context) (storage.Settings, error)
}

type Surface interface {
	SetTarget(to kit.ChatTarget)
	Target() kit.ChatTarget
	IsPromptOpen() bool
	QuickEntry(ctx context.Context) error
	HandleReply(ctx context.Context, text string) (storage.Entry, bool, error)
	Dismiss() bool
}

type Journal interface {
	List(ctx context.Context, f storage.EntryFilter) ([]storage.Entry, int, error)
	Delete(ctx context.Context, id int64) error
	LastEntryAt(ctx context.Context) (time.Time, bool, error)
	Tags(ctx context.Context, kind storage.TagKind) ([]storage.Tag, error)
	AddTag(ctx context.Context, kind storage.TagKind, name string) (storage.Tag, error)
	RenameTag(ctx context.Context, kind storage.TagKind, oldName, newName string) (storage.Tag, error)
	RemoveTag(ctx context.Context, kind storage.TagKind, name string) error
	Insights(ctx context.Context) (journal.Insights, error)
}

// Services are the collaborators commands act on.
type Services struct {
	Scheduler Scheduler
	Settings  Settings
	Surface   Surface
	Journal   Journal
	// Supervisors is optional; /status reports their counters.
	Supervisors func() map[string]supervisor.Counters
}

type Options struct {
	Owners        []int64
	SnoozeDefault int
	Timeout       time.Duration
	Location      *time.Location
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string
	ReqID   string
	Logger  logx.Logger
}

// UserError is shown to the user verbatim instead of a generic failure.
type UserError struct{ Msg string }

func (e *UserError) Error() string { return e.Msg }

func userErr(msg string) error { return &UserError{Msg: msg} }

type Router struct {
	adapter kit.Adapter
	serv    Services
	log     logx.Logger
	opt     Options

	cmds  []Command
	index map[string]*Command
	mw    []Middleware
}

func New(adapter kit.Adapter, serv Services, log logx.Logger, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "router"))
	if opt.SnoozeDefault <= 0 {
		opt.SnoozeDefault = defaultSnooze
	}
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if len(opt.Owners) == 0 {
		log.Warn("no owners configured; every sender is rejected")
	}
	r := &Router{
		adapter: adapter,
		serv:    serv,
		log:     log,
		opt:     opt,
		index:   map[string]*Command{},
	}
	r.mw = []Middleware{MWRequestLog(log), MWPanicRecover(log)}
	r.register(r.commands())
	return r
}

func (r *Router) register(cmds []Command) {
	r.cmds = cmds
	for i := range r.cmds {
		c := &r.cmds[i]
		r.index[c.Name] = c
		for _, a := range c.Aliases {
			r.index[a] = c
		}
	}
}

// Commands returns the registered commands in help order.
func (r *Router) Commands() []Command { return append([]Command(nil), r.cmds...) }

// PublishMenu pushes the command list to adapters that show a / menu.
func (r *Router) PublishMenu(ctx context.Context) error {
	mu, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	out := make([]kit.BotCommand, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return mu.UpdateMenuCommands(ctx, out)
}

// Run routes updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("router started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("router stopped", logx.Any("err", ctx.Err()))
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("router stopped (updates channel closed)")
				return nil
			}
			r.Handle(ctx, up)
		}
	}
}

// Handle routes a single update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) isOwner(id int64) bool {
	for _, o := range r.opt.Owners {
		if o == id {
			return true
		}
	}
	return false
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, cmd string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
		),
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}
	if !r.isOwner(msg.FromID) {
		r.log.Warn("message from non-owner ignored", logx.Int64("from_id", msg.FromID))
		return
	}
	// The first owner message decides where prompts go until /start says otherwise.
	if r.serv.Surface.Target().ChatID == 0 {
		r.serv.Surface.SetTarget(chat)
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		req := r.newRequest(up, chat, msg.FromID, "reply")
		req.Args = []string{text}
		r.run(ctx, req, r.handleReply, 0)
		return
	}

	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	cmd, ok := r.index[word]
	if !ok {
		r.reply(ctx, chat, "Unknown command. Try /help")
		return
	}
	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	req.Args = parts[1:]
	r.run(ctx, req, cmd.Handle, cmd.Timeout)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	if !r.isOwner(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "unauthorized")
		return
	}
	chat := kit.ChatTarget{ChatID: cb.ChatID}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+cb.Data)
	req.Payload = cb.Data

	var h HandlerFunc
	switch {
	case cb.Data == surface.CallbackSkip:
		h = r.cbSkip
	case strings.HasPrefix(cb.Data, surface.CallbackSnoozePrefix):
		h = r.cbSnooze
	default:
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		r.log.Debug("unknown callback", logx.String("data", cb.Data))
		return
	}
	r.run(ctx, req, h, 0)
}

func (r *Router) run(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = r.opt.Timeout
	}
	final := Chain(h, append(r.mw, MWTimeout(timeout))...)
	err := final(ctx, req)
	if err == nil {
		return
	}
	var ue *UserError
	if errors.As(err, &ue) {
		r.reply(ctx, req.Chat, ue.Msg)
		return
	}
	r.reply(ctx, req.Chat, "Something went wrong: "+err.Error())
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Err(err))
	}
}
