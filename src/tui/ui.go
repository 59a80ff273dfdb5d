// Package tui is the terminal front end of a room session.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/orchestra-mcp/roomchat/src/session"
	"github.com/orchestra-mcp/roomchat/src/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultTypingInterval is the minimum gap between typing notifications.
const DefaultTypingInterval = time.Second

const (
	msgView    = "messages"
	userView   = "users"
	statusView = "status"
	inputView  = "input"
)

// Options configures a ChatUI.
type Options struct {
	Username string
	UserID   int64
	// TypingInterval defaults to DefaultTypingInterval.
	TypingInterval time.Duration
	Logger         zerolog.Logger
}

// ChatUI renders a session and turns keystrokes into outbound frames.
type ChatUI struct {
	gui      *gocui.Gui
	username string
	userID   int64
	typing   *rate.Limiter
	logger   zerolog.Logger

	mu      sync.Mutex
	manager *session.Manager
	seen    map[int64]bool
	notice  string
}

// NewChatUI creates the terminal UI. Attach a session before Run.
func NewChatUI(opts Options) (*ChatUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = DefaultTypingInterval
	}

	ui := &ChatUI{
		gui:      g,
		username: opts.Username,
		userID:   opts.UserID,
		typing:   rate.NewLimiter(rate.Every(opts.TypingInterval), 1),
		logger:   opts.Logger.With().Str("component", "tui").Logger(),
		seen:     make(map[int64]bool),
	}
	g.Cursor = true
	g.SetManagerFunc(ui.layout)
	return ui, nil
}

// Attach binds the session the UI renders and sends through.
func (ui *ChatUI) Attach(m *session.Manager) {
	ui.mu.Lock()
	ui.manager = m
	ui.mu.Unlock()
	ui.Refresh()
}

func (ui *ChatUI) session() *session.Manager {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.manager
}

// Refresh schedules a redraw. It is safe to call from any goroutine and is
// meant to be the session's OnChange hook.
func (ui *ChatUI) Refresh() {
	ui.gui.Update(ui.render)
}

func (ui *ChatUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 20
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 6

	if v, err := g.SetView(msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(userView, msgWidth+1, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Online"
	}

	if v, err := g.SetView(statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}

	if v, err := g.SetView(inputView, 0, msgHeight+3, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Message (Enter to send, Ctrl-C to quit)"
		v.Editable = true
		v.Wrap = true
		v.Editor = gocui.EditorFunc(ui.edit)
		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
		return ui.render(g)
	}
	return nil
}

// render draws the current snapshot and acknowledges newly shown messages.
func (ui *ChatUI) render(g *gocui.Gui) error {
	m := ui.session()
	if m == nil {
		return nil
	}
	snap := m.Snapshot()

	if v, err := g.View(msgView); err == nil {
		v.Clear()
		for _, msg := range snap.Messages {
			fmt.Fprintln(v, FormatMessage(msg))
		}
	}

	if v, err := g.View(userView); err == nil {
		v.Clear()
		for _, name := range snap.ActiveUsernames {
			marker := "  "
			if name == ui.username {
				marker = "* "
			}
			fmt.Fprintln(v, marker+name)
		}
	}

	if v, err := g.View(statusView); err == nil {
		v.Clear()
		ui.mu.Lock()
		notice := ui.notice
		ui.mu.Unlock()
		status := FormatStatus(m.RoomID(), snap.IsConnected, FormatTyping(snap.TypingUsernames, ui.username))
		if notice != "" {
			status += " | " + notice
		}
		fmt.Fprint(v, status)
	}

	ui.mu.Lock()
	ids := UnseenIDs(snap.Messages, ui.seen, ui.username)
	ui.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	// Unsent receipts are retried on the next render.
	if !m.SendSeenReceipt(ids) {
		ui.logger.Debug().Int("count", len(ids)).Msg("seen receipt not sent")
		return nil
	}
	ui.mu.Lock()
	MarkSeen(ui.seen, ids)
	ui.mu.Unlock()
	return nil
}

// edit forwards keystrokes to the default editor and announces typing,
// at most once per typing interval.
func (ui *ChatUI) edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
	gocui.DefaultEditor.Edit(v, key, ch, mod)
	if ch == 0 && key != gocui.KeySpace {
		return
	}
	m := ui.session()
	if m == nil || !ui.typing.Allow() {
		return
	}
	m.SendTypingNotification(ui.username)
}

func (ui *ChatUI) handleEnter(g *gocui.Gui, v *gocui.View) error {
	content := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if content == "" {
		return nil
	}

	m := ui.session()
	if m == nil {
		return nil
	}
	notice := ""
	if !m.SendMessage(types.OutgoingMessage{SenderID: ui.userID, Content: content}, ui.username) {
		notice = "message not sent"
	}
	ui.mu.Lock()
	ui.notice = notice
	ui.mu.Unlock()
	return ui.render(g)
}

func (ui *ChatUI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, ui.handleEnter); err != nil {
		return err
	}

	scroll := func(dy int) func(*gocui.Gui, *gocui.View) error {
		return func(g *gocui.Gui, _ *gocui.View) error {
			v, err := g.View(msgView)
			if err != nil {
				return err
			}
			ox, oy := v.Origin()
			if oy+dy < 0 {
				return nil
			}
			v.Autoscroll = false
			return v.SetOrigin(ox, oy+dy)
		}
	}
	if err := ui.gui.SetKeybinding("", gocui.KeyPgup, gocui.ModNone, scroll(-5)); err != nil {
		return err
	}
	return ui.gui.SetKeybinding("", gocui.KeyPgdn, gocui.ModNone, scroll(5))
}

// Run blocks until the user quits.
func (ui *ChatUI) Run() error {
	if err := ui.keybindings(); err != nil {
		return err
	}
	if err := ui.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// Quit ends Run from any goroutine.
func (ui *ChatUI) Quit() {
	ui.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
}

// Close restores the terminal.
func (ui *ChatUI) Close() {
	ui.gui.Close()
}
