package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"quietq/internal/journal"
	"quietq/internal/schedule"
	"quietq/internal/settings"
	"quietq/internal/storage"
	"quietq/internal/surface"
	logx "quietq/pkg/logx"
)

const (
	defaultEntries = 5
	maxEntries     = 20
	previewRunes   = 80
)

func (r *Router) commands() []Command {
	return []Command{
		{Name: "start", Description: "Send prompts to this chat", Handle: r.cmdStart},
		{Name: "help", Description: "List commands", Handle: r.cmdHelp},
		{Name: "prompt", Aliases: []string{"new"}, Description: "Write an entry now", Handle: r.cmdPrompt},
		{Name: "snooze", Usage: "[minutes]", Description: "Postpone the next prompt", Handle: r.cmdSnooze},
		{Name: "skip", Description: "Dismiss the open prompt", Handle: r.cmdSkip},
		{Name: "pause", Description: "Stop prompting", Handle: r.cmdPause},
		{Name: "resume", Description: "Start prompting again", Handle: r.cmdResume},
		{Name: "interval", Usage: "<minutes|eod>", Description: "Set how often prompts appear", Handle: r.cmdInterval},
		{Name: "quiet", Usage: "<HH:MM> <HH:MM> | off", Description: "Set quiet hours", Handle: r.cmdQuiet},
		{Name: "settings", Description: "Show settings", Handle: r.cmdSettings},
		{Name: "status", Description: "Show the next prompt time", Handle: r.cmdStatus},
		{Name: "stats", Aliases: []string{"insights"}, Description: "This week's summary", Handle: r.cmdStats},
		{Name: "entries", Usage: "[n]", Description: "Show recent entries", Handle: r.cmdEntries},
		{Name: "delete", Usage: "<id>", Description: "Delete an entry", Handle: r.cmdDelete},
		{Name: "projects", Usage: "[add|rm <name> | mv <old> <new>]", Description: "Manage projects", Handle: r.tagsHandler(storage.TagProject)},
		{Name: "traits", Usage: "[add|rm <name> | mv <old> <new>]", Description: "Manage traits", Handle: r.tagsHandler(storage.TagTrait)},
	}
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	r.serv.Surface.SetTarget(req.Chat)
	req.Logger.Info("prompt chat set")
	r.reply(ctx, req.Chat, "Prompts will arrive here. Answer them by replying with text.\n\n"+r.helpText())
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	r.reply(ctx, req.Chat, r.helpText())
	return nil
}

func (r *Router) cmdPrompt(ctx context.Context, req *Request) error {
	if r.serv.Surface.IsPromptOpen() {
		return userErr("A prompt is already open. Reply to it or /skip it.")
	}
	return r.serv.Surface.QuickEntry(ctx)
}

func (r *Router) cmdSnooze(ctx context.Context, req *Request) error {
	minutes := r.opt.SnoozeDefault
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return userErr("Usage: /snooze [minutes]")
		}
		minutes = n
	}
	r.snooze(minutes)
	r.reply(ctx, req.Chat, fmt.Sprintf("Snoozed for %s.", humanMinutes(minutes)))
	return nil
}

func (r *Router) snooze(minutes int) {
	r.serv.Surface.Dismiss()
	r.serv.Scheduler.Snooze(minutes)
}

func (r *Router) cmdSkip(ctx context.Context, req *Request) error {
	if !r.serv.Surface.Dismiss() {
		return userErr("No prompt is open.")
	}
	r.reply(ctx, req.Chat, "Skipped.")
	return nil
}

func (r *Router) cmdPause(ctx context.Context, req *Request) error {
	if _, err := r.serv.Settings.Pause(ctx); err != nil {
		return err
	}
	r.reply(ctx, req.Chat, "Paused. /resume to start again.")
	return nil
}

func (r *Router) cmdResume(ctx context.Context, req *Request) error {
	if _, err := r.serv.Settings.Resume(ctx); err != nil {
		return err
	}
	r.reply(ctx, req.Chat, "Resumed.")
	return nil
}

func (r *Router) cmdInterval(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return userErr("Usage: /interval <minutes|eod>")
	}
	var minutes int
	switch a := strings.ToLower(req.Args[0]); a {
	case "eod", "end-of-day", "endofday":
		minutes = schedule.EndOfDayInterval
	default:
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 {
			return userErr("Interval must be a positive number of minutes or eod.")
		}
		minutes = n
	}
	row, err := r.serv.Settings.Update(ctx, storage.SettingsPatch{PromptIntervalMinutes: &minutes})
	if err != nil {
		return asUserErr(err)
	}
	r.reply(ctx, req.Chat, "Interval: "+settings.IntervalLabel(row.PromptIntervalMinutes))
	return nil
}

func (r *Router) cmdQuiet(ctx context.Context, req *Request) error {
	var start, end string
	switch {
	case len(req.Args) == 1 && strings.EqualFold(req.Args[0], "off"):
		start, end = "00:00", "00:00"
	case len(req.Args) == 2:
		start, end = req.Args[0], req.Args[1]
	default:
		return userErr("Usage: /quiet <HH:MM> <HH:MM> or /quiet off")
	}
	row, err := r.serv.Settings.Update(ctx, storage.SettingsPatch{QuietHoursStart: &start, QuietHoursEnd: &end})
	if err != nil {
		return asUserErr(err)
	}
	r.reply(ctx, req.Chat, "Quiet hours: "+quietLabel(row))
	return nil
}

func (r *Router) cmdSettings(ctx context.Context, req *Request) error {
	row, err := r.serv.Settings.Get(ctx)
	if err != nil {
		return err
	}
	r.reply(ctx, req.Chat, formatSettings(row))
	return nil
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	row, err := r.serv.Settings.Get(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	if at, ok := r.serv.Scheduler.NextFireAt(); ok {
		fmt.Fprintf(&b, "Next check: %s\n", at.In(r.opt.Location).Format("Mon 15:04"))
	} else {
		b.WriteString("Next check: not scheduled\n")
	}
	if row.IsPaused {
		b.WriteString("Paused: yes\n")
	}
	if r.serv.Surface.IsPromptOpen() {
		b.WriteString("A prompt is waiting for your answer.\n")
	}
	last, ok, err := r.serv.Journal.LastEntryAt(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(&b, "Last entry: %s\n", last.In(r.opt.Location).Format("Mon 2 Jan 15:04"))
	} else {
		b.WriteString("Last entry: none yet\n")
	}
	if r.serv.Supervisors != nil {
		sups := r.serv.Supervisors()
		names := make([]string, 0, len(sups))
		for n := range sups {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			c := sups[n]
			fmt.Fprintf(&b, "%s: active=%d restarts=%d\n", n, c.Active, c.Restarts)
		}
	}
	r.reply(ctx, req.Chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) cmdStats(ctx context.Context, req *Request) error {
	in, err := r.serv.Journal.Insights(ctx)
	if err != nil {
		return err
	}
	r.reply(ctx, req.Chat, in.Format())
	return nil
}

func (r *Router) cmdEntries(ctx context.Context, req *Request) error {
	n := defaultEntries
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v < 1 {
			return userErr("Usage: /entries [n]")
		}
		n = min(v, maxEntries)
	}
	list, total, err := r.serv.Journal.List(ctx, storage.EntryFilter{Limit: n})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		r.reply(ctx, req.Chat, "No entries yet.")
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Latest %d of %d:\n", len(list), total)
	for _, e := range list {
		b.WriteString(r.formatEntry(e))
		b.WriteByte('\n')
	}
	r.reply(ctx, req.Chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return userErr("Usage: /delete <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return userErr("Usage: /delete <id>")
	}
	if err := r.serv.Journal.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return userErr(fmt.Sprintf("Entry #%d not found.", id))
		}
		return err
	}
	req.Logger.Info("entry deleted", logx.Int64("entry_id", id))
	r.reply(ctx, req.Chat, fmt.Sprintf("Deleted #%d.", id))
	return nil
}

func (r *Router) tagsHandler(kind storage.TagKind) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		usage := fmt.Sprintf("Usage: /%s [add|rm <name> | mv <old> <new>]", kind)
		if len(req.Args) == 0 {
			tags, err := r.serv.Journal.Tags(ctx, kind)
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				r.reply(ctx, req.Chat, fmt.Sprintf("No %s yet.", kind))
				return nil
			}
			names := make([]string, 0, len(tags))
			for _, t := range tags {
				names = append(names, t.Name)
			}
			r.reply(ctx, req.Chat, strings.Join(names, "\n"))
			return nil
		}

		op := strings.ToLower(req.Args[0])
		rest := req.Args[1:]
		switch op {
		case "add":
			name := strings.Join(rest, " ")
			if strings.TrimSpace(name) == "" {
				return userErr(usage)
			}
			t, err := r.serv.Journal.AddTag(ctx, kind, name)
			if err != nil {
				return err
			}
			r.reply(ctx, req.Chat, "Added "+t.Name+".")
		case "rm", "remove", "del":
			name := strings.Join(rest, " ")
			if strings.TrimSpace(name) == "" {
				return userErr(usage)
			}
			if err := r.serv.Journal.RemoveTag(ctx, kind, name); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return userErr(fmt.Sprintf("%s not found.", name))
				}
				return err
			}
			r.reply(ctx, req.Chat, "Removed "+name+".")
		case "mv", "rename":
			if len(rest) != 2 {
				return userErr(usage)
			}
			t, err := r.serv.Journal.RenameTag(ctx, kind, rest[0], rest[1])
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return userErr(fmt.Sprintf("%s not found.", rest[0]))
				}
				return err
			}
			r.reply(ctx, req.Chat, "Renamed to "+t.Name+".")
		default:
			return userErr(usage)
		}
		return nil
	}
}

// handleReply stores free text as the answer to the open prompt.
func (r *Router) handleReply(ctx context.Context, req *Request) error {
	e, ok, err := r.serv.Surface.HandleReply(ctx, req.Args[0])
	if !ok {
		return userErr("No prompt is open. Send /prompt to write an entry.")
	}
	if err != nil {
		return asUserErr(err)
	}
	msg := fmt.Sprintf("Saved #%d.", e.ID)
	if e.ProjectTag != "" {
		msg += " Project: " + e.ProjectTag + "."
	}
	r.reply(ctx, req.Chat, msg)
	return nil
}

func (r *Router) cbSkip(ctx context.Context, req *Request) error {
	text := "Nothing to skip."
	if r.serv.Surface.Dismiss() {
		text = "Skipped."
	}
	return r.adapter.AnswerCallback(ctx, req.Update.Callback.ID, text)
}

func (r *Router) cbSnooze(ctx context.Context, req *Request) error {
	minutes, ok := surface.ParseSnooze(req.Payload)
	if !ok {
		return r.adapter.AnswerCallback(ctx, req.Update.Callback.ID, "")
	}
	r.snooze(minutes)
	return r.adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Snoozed for "+humanMinutes(minutes))
}

func (r *Router) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range r.cmds {
		b.WriteString("/" + c.Name)
		if c.Usage != "" {
			b.WriteString(" " + c.Usage)
		}
		b.WriteString(" - " + c.Description + "\n")
	}
	b.WriteString("\nAnything else you type answers the open prompt. Tag with #project:name or #trait:name.")
	return b.String()
}

func (r *Router) formatEntry(e storage.Entry) string {
	var tags []string
	if e.Category != "" {
		tags = append(tags, string(e.Category))
	}
	if e.ProjectTag != "" {
		tags = append(tags, "#"+e.ProjectTag)
	}
	if e.TraitTag != "" {
		tags = append(tags, "~"+e.TraitTag)
	}
	line := fmt.Sprintf("#%d %s", e.ID, e.CreatedAt.In(r.opt.Location).Format("Jan 2 15:04"))
	if len(tags) > 0 {
		line += " [" + strings.Join(tags, " ") + "]"
	}
	return line + " " + preview(e.Text, previewRunes)
}

func formatSettings(row storage.Settings) string {
	paused := "no"
	if row.IsPaused {
		paused = "yes"
	}
	return fmt.Sprintf("Interval: %s\nQuiet hours: %s\nPaused: %s",
		settings.IntervalLabel(row.PromptIntervalMinutes), quietLabel(row), paused)
}

func quietLabel(row storage.Settings) string {
	if row.QuietHoursStart == row.QuietHoursEnd {
		return "off"
	}
	return row.QuietHoursStart + " to " + row.QuietHoursEnd
}

func humanMinutes(m int) string {
	switch h, rem := m/60, m%60; {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case rem == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%dm", h, rem)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

// asUserErr shows validation failures to the user as-is.
func asUserErr(err error) error {
	if errors.Is(err, settings.ErrInvalid) || errors.Is(err, journal.ErrEmptyText) || errors.Is(err, journal.ErrUnknownCategory) {
		return userErr(err.Error())
	}
	return err
}
