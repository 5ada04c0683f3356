package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/markdown"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/viewstate"
)

// Profiles reads and updates the signed-in user's profile.
type Profiles interface {
	GetProfile(ctx context.Context) (*models.Profile, error)
	UpdateProfile(ctx context.Context, in auth.ProfileInput) (*models.Profile, error)
}

// Watcher streams pushed changes of a conversation.
type Watcher interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan chat.Event, error)
}

const helpText = `Commands:
  /new                    start an empty chat
  /list                   list your chats
  /open <n>               open chat n from the list
  /delete [n]             delete chat n (default: the open chat)
  /rename <title>         rename the open chat
  /share on|off           make the open chat public or private
  /profile [field value]  show the profile, or set name, bio, avatar or theme
  /settings               show settings
  /watch                  follow live changes of the open chat
  /help                   show this help
  /quit                   leave
Anything else is sent as a message. With no chat open, a new chat is
started and titled from the message.`

type REPL struct {
	Ctl      *viewstate.Controller
	Profiles Profiles
	Watcher  Watcher
	Out      *Printer
	// Render turns message content into terminal output.
	Render func(string) string
	Now    func() time.Time

	in          *bufio.Scanner
	stopWatch   context.CancelFunc
	watchingID  string
	bannerShown bool
}

func NewREPL(ctl *viewstate.Controller, in io.Reader, out *Printer) *REPL {
	return &REPL{
		Ctl:    ctl,
		Out:    out,
		Render: func(s string) string { return s },
		Now:    time.Now,
		in:     bufio.NewScanner(in),
	}
}

// Run reads lines until /quit or the end of input.
func (r *REPL) Run(ctx context.Context) error {
	defer r.unwatch()
	if !r.bannerShown {
		r.Out.Title("Subspace Chat")
		r.Out.Dim("Type /help for commands.")
		r.bannerShown = true
	}
	if err := r.Ctl.Refresh(ctx); err == nil {
		r.printList()
	}
	for r.in.Scan() {
		quit, err := r.Execute(ctx, r.in.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
	return r.in.Err()
}

// Execute runs one input line and reports whether the session should end.
// Failures the controller already reported as notices are not repeated.
func (r *REPL) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		r.Ctl.SetDraft(line)
		r.send(ctx, line)
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.Out.Plain(helpText)
	case "/new":
		if conv, err := r.Ctl.CreateConversation(ctx); err == nil {
			r.Out.Info("Started %q", conv.Title)
		}
	case "/list":
		if err := r.Ctl.Refresh(ctx); err == nil {
			r.printList()
		}
	case "/open":
		conv, ok := r.pick(arg)
		if !ok {
			return false, nil
		}
		if err := r.Ctl.SelectConversation(ctx, conv.ID); err == nil {
			r.printThread()
		}
	case "/delete":
		r.delete(ctx, arg)
	case "/rename":
		id := r.Ctl.Snapshot().ActiveID
		if id == "" {
			r.Out.Error("No chat is open.")
			return false, nil
		}
		r.report(r.Ctl.RenameConversation(ctx, id, arg))
	case "/share":
		r.share(ctx, arg)
	case "/profile":
		r.profile(ctx, arg)
	case "/settings":
		r.settings()
	case "/watch":
		r.watch(ctx)
	default:
		r.Out.Error("Unknown command %s. Type /help for commands.", cmd)
	}
	return false, nil
}

// report prints errors the controller returns without a notice.
func (r *REPL) report(err error) {
	if err != nil && common.KindOf(err) == common.KindValidation {
		r.Out.Error("%s", common.MessageOf(err))
	}
}

func (r *REPL) send(ctx context.Context, text string) {
	st := r.Ctl.Snapshot()
	if st.Typing {
		r.Out.Dim("Still waiting for the last reply in this chat.")
		return
	}
	if err := chat.ValidateMessage(text); err != nil {
		r.report(err)
		return
	}
	r.Out.Dim("%s", viewstate.PlaceholderText)
	var err error
	if st.ActiveID == "" {
		_, err = r.Ctl.StartConversation(ctx, text)
	} else {
		err = r.Ctl.SendMessage(ctx, text)
	}
	if err != nil {
		r.report(err)
		return
	}
	r.Ctl.SetDraft("")

	display := r.Ctl.Snapshot().Display()
	if n := len(display); n > 0 && display[n-1].IsAssistant() && !display[n-1].Placeholder {
		r.printEntry(display[n-1])
	}
}

func (r *REPL) printEntry(e viewstate.Entry) {
	if e.IsAssistant() {
		r.Out.Dim("AI · %s", ClockTime(e.CreatedAt))
		r.Out.Plain(r.Render(e.Content))
		return
	}
	r.Out.User(e.Content)
}

func (r *REPL) printThread() {
	st := r.Ctl.Snapshot()
	if st.Active != nil {
		r.Out.Title("%s", st.Active.Title)
	}
	display := st.Display()
	if len(display) == 0 {
		r.Out.Dim("No messages yet. Say hello!")
		return
	}
	for _, e := range display {
		r.printEntry(e)
	}
}

func (r *REPL) printList() {
	st := r.Ctl.Snapshot()
	if len(st.Conversations) == 0 {
		r.Out.Dim("No chats yet. Type a message or /new to start one.")
		return
	}
	now := r.Now()
	for i, c := range st.Conversations {
		when := c.UpdatedAt
		if c.LastMessageAt != nil {
			when = *c.LastMessageAt
		}
		row := fmt.Sprintf("%2d. %s  (%d messages, %s)", i+1, c.Title, c.MessageCount, RelativeTime(when, now))
		if c.IsPublic {
			row += " [public]"
		}
		if c.ID == st.ActiveID {
			r.Out.Plain(activeStyle.Render(row))
			if n := len(st.Thread); n > 0 {
				r.Out.Dim("    %s", markdown.Preview(st.Thread[n-1].Content))
			}
			continue
		}
		r.Out.Plain(row)
	}
}

// pick resolves a 1-based list index. An empty arg means the open chat.
func (r *REPL) pick(arg string) (chat.Conversation, bool) {
	st := r.Ctl.Snapshot()
	if arg == "" {
		for _, c := range st.Conversations {
			if c.ID == st.ActiveID {
				return c, true
			}
		}
		r.Out.Error("No chat is open.")
		return chat.Conversation{}, false
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(st.Conversations) {
		r.Out.Error("No chat %s. Use /list to see the numbers.", arg)
		return chat.Conversation{}, false
	}
	return st.Conversations[n-1], true
}

func (r *REPL) confirm(prompt string) bool {
	r.Out.Plain(prompt + " [y/N]")
	if !r.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.in.Text()))
	return answer == "y" || answer == "yes"
}

func (r *REPL) delete(ctx context.Context, arg string) {
	conv, ok := r.pick(arg)
	if !ok {
		return
	}
	confirmed := false
	err := r.Ctl.DeleteConversation(ctx, conv.ID, func() bool {
		confirmed = r.confirm(fmt.Sprintf("Delete %q? This cannot be undone.", conv.Title))
		return confirmed
	})
	if err == nil && confirmed {
		r.Out.Info("Chat deleted")
		if r.watchingID == conv.ID {
			r.unwatch()
		}
	}
}

func (r *REPL) share(ctx context.Context, arg string) {
	id := r.Ctl.Snapshot().ActiveID
	if id == "" {
		r.Out.Error("No chat is open.")
		return
	}
	var public bool
	switch arg {
	case "on":
		public = true
	case "off":
	default:
		r.Out.Error("Usage: /share on|off")
		return
	}
	conv, err := r.Ctl.SetVisibility(ctx, id, public)
	if err == nil && conv.IsPublic && conv.ShareToken != nil {
		r.Out.Info("Share token: %s", *conv.ShareToken)
	}
}

func (r *REPL) profile(ctx context.Context, arg string) {
	if r.Profiles == nil {
		r.Out.Error("Profiles are not available.")
		return
	}
	if arg == "" {
		if !r.Ctl.ToggleProfile() {
			r.Out.Dim("Profile closed")
			return
		}
		p, err := r.Profiles.GetProfile(ctx)
		if err != nil {
			r.Out.Error("Failed to load profile: %s", common.MessageOf(err))
			return
		}
		r.printProfile(p)
		return
	}

	field, value, _ := strings.Cut(arg, " ")
	value = strings.TrimSpace(value)
	var in auth.ProfileInput
	switch field {
	case "name":
		in.DisplayName = &value
	case "bio":
		in.Bio = &value
	case "avatar":
		in.AvatarURL = &value
	case "theme":
		t := models.Theme(strings.ToLower(value))
		in.ThemePreference = &t
	default:
		r.Out.Error("Usage: /profile [name|bio|avatar|theme <value>]")
		return
	}
	p, err := r.Profiles.UpdateProfile(ctx, in)
	if err != nil {
		r.Out.Error("Failed to update profile: %s", common.MessageOf(err))
		return
	}
	r.Out.Info("Profile updated successfully!")
	r.printProfile(p)
}

func (r *REPL) printProfile(p *models.Profile) {
	r.Out.Title("Profile")
	r.Out.Plain("Name:   " + p.DisplayName)
	if p.Bio != "" {
		r.Out.Plain("Bio:    " + p.Bio)
	}
	if p.AvatarURL != "" {
		r.Out.Plain("Avatar: " + p.AvatarURL)
	}
	r.Out.Plain("Theme:  " + string(p.ThemePreference))
}

func (r *REPL) settings() {
	if !r.Ctl.ToggleSettings() {
		r.Out.Dim("Settings closed")
		return
	}
	st := r.Ctl.Snapshot()
	r.Out.Title("Settings")
	if st.Session != nil {
		r.Out.Plain("Signed in as " + st.Session.Email)
	}
	watching := "off"
	if r.watchingID != "" {
		watching = "on"
	}
	r.Out.Plain("Live updates: " + watching)
	r.Out.Dim("Change the theme with /profile theme light|dark|auto")
}

// watch toggles a live subscription on the open chat.
func (r *REPL) watch(ctx context.Context) {
	if r.watchingID != "" {
		r.unwatch()
		r.Out.Info("Stopped watching")
		return
	}
	if r.Watcher == nil {
		r.Out.Error("Live updates are not available.")
		return
	}
	id := r.Ctl.Snapshot().ActiveID
	if id == "" {
		r.Out.Error("No chat is open.")
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	events, err := r.Watcher.Subscribe(wctx, id)
	if err != nil {
		cancel()
		r.Out.Error("Failed to watch chat: %s", common.MessageOf(err))
		return
	}
	r.stopWatch = cancel
	r.watchingID = id
	r.Out.Info("Watching for changes")

	go func() {
		for ev := range events {
			r.Ctl.HandleEvent(wctx, ev)
			r.Out.Dim("[live] %s", describe(ev))
		}
	}()
}

func (r *REPL) unwatch() {
	if r.stopWatch != nil {
		r.stopWatch()
	}
	r.stopWatch = nil
	r.watchingID = ""
}

func describe(ev chat.Event) string {
	switch ev.Type {
	case chat.EventMessageCreated, chat.EventMessageUpdated:
		if ev.Message != nil {
			return fmt.Sprintf("%s: %s", ev.Message.Author, markdown.Preview(ev.Message.Content))
		}
	case chat.EventConversationDeleted:
		return "chat deleted"
	case chat.EventConversationUpdated:
		return "chat updated"
	case chat.EventMessageDeleted:
		return "message deleted"
	}
	return string(ev.Type)
}

var errNotSignedIn = errors.New("not signed in, run `subspace signin` first")
