// Package model is the bubbletea program behind the tailcast viewer.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/tailcast/pkg/viewer"
)

// ConnState is the stream connection as shown in the status bar.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnLive
	ConnReconnecting
)

func (c ConnState) String() string {
	switch c {
	case ConnConnecting:
		return "connecting"
	case ConnLive:
		return "live"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// maxBatch bounds how many queued updates are folded into one frame.
const maxBatch = 512

// Options configures the viewer.
type Options struct {
	URL            string
	MaxLines       int
	ReconnectDelay time.Duration
}

// App is the root Bubble Tea model.
type App struct {
	opts    Options
	state   *viewer.State
	vp      viewport.Model
	keys    keyMap
	help    help.Model
	updates chan viewer.Update
	cancel  context.CancelFunc

	conn     ConnState
	degraded bool
	lastErr  error
	retryIn  time.Duration
	width    int
	height   int
}

// New creates a viewer model. The stream starts in Init.
func New(opts Options) *App {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &App{
		opts:    opts,
		state:   viewer.New(opts.MaxLines, 1),
		vp:      viewport.New(0, 1),
		keys:    defaultKeys(),
		help:    help.New(),
		updates: make(chan viewer.Update, 1024),
	}
}

// updatesMsg carries a batch of stream updates.
type updatesMsg []viewer.Update

// Init starts following the stream.
func (a *App) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		_ = viewer.Follow(ctx, a.opts.URL, a.opts.ReconnectDelay, func(u viewer.Update) {
			select {
			case a.updates <- u:
			case <-ctx.Done():
			}
		})
	}()
	return tea.Batch(
		waitForUpdates(a.updates),
		tea.SetWindowTitle("tailcast"),
	)
}

// waitForUpdates blocks for one update, then takes whatever else is queued.
func waitForUpdates(ch <-chan viewer.Update) tea.Cmd {
	return func() tea.Msg {
		batch := updatesMsg{<-ch}
		for len(batch) < maxBatch {
			select {
			case u := <-ch:
				batch = append(batch, u)
			default:
				return batch
			}
		}
		return batch
	}
}

// Update handles messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case updatesMsg:
		changed := false
		for _, u := range msg {
			if a.apply(u) {
				changed = true
			}
		}
		if changed {
			a.sync()
		}
		return a, waitForUpdates(a.updates)

	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			a.state.ScrollBy(-3)
		case tea.MouseButtonWheelDown:
			a.state.ScrollBy(3)
		default:
			return a, nil
		}
		a.vp.SetYOffset(a.state.Offset())
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) apply(u viewer.Update) bool {
	switch u.Kind {
	case viewer.UpdateConnected:
		a.conn = ConnLive
		a.lastErr = nil
	case viewer.UpdateStatus:
		a.degraded = u.Degraded
	case viewer.UpdateDisconnected:
		a.conn = ConnReconnecting
		a.lastErr = u.Err
		a.retryIn = u.RetryIn
	}
	return a.state.Apply(u)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := max(1, a.state.Height()-1)
	switch {
	case key.Matches(msg, a.keys.Quit):
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit
	case key.Matches(msg, a.keys.Up):
		a.state.ScrollBy(-1)
	case key.Matches(msg, a.keys.Down):
		a.state.ScrollBy(1)
	case key.Matches(msg, a.keys.PageUp):
		a.state.ScrollBy(-page)
	case key.Matches(msg, a.keys.PageDown):
		a.state.ScrollBy(page)
	case key.Matches(msg, a.keys.Top):
		a.state.Top()
	case key.Matches(msg, a.keys.Bottom):
		a.state.Bottom()
	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		a.resize(a.width, a.height)
		return a, nil
	default:
		return a, nil
	}
	a.vp.SetYOffset(a.state.Offset())
	return a, nil
}

func (a *App) resize(width, height int) {
	a.width, a.height = width, height
	a.help.Width = width
	body := max(1, height-a.chromeHeight())
	a.state.Resize(body)
	a.vp.Width = width
	a.vp.Height = body
	a.sync()
}

// sync pushes the state into the viewport.
func (a *App) sync() {
	a.vp.SetContent(renderLines(a.state.Lines()))
	a.vp.SetYOffset(a.state.Offset())
}

// State exposes the scrollback, mainly for tests.
func (a *App) State() *viewer.State { return a.state }

func (a *App) statusLine() string {
	conn := a.conn.String()
	if a.conn == ConnReconnecting && a.lastErr != nil {
		conn = fmt.Sprintf("reconnecting in %s (%v)", a.retryIn, a.lastErr)
	}
	health := "ok"
	if a.degraded {
		health = "source degraded"
	}
	follow := "follow"
	if !a.state.Follow() {
		follow = "paused"
	}
	return fmt.Sprintf("%s | %s | %d/%d lines | %s", conn, health, a.state.Len(), a.state.MaxLines(), follow)
}
