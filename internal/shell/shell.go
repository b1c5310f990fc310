// Package shell exposes the window and tray operations the host application
// shell invokes. The daemon does not own a window: each operation is
// forwarded to the shell as a "window" event and the shell applies it.
package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/omnimark/internal/notify"
)

// Window actions.
const (
	ActionShow       = "show"
	ActionHide       = "hide"
	ActionFocus      = "focus"
	ActionUnminimize = "unminimize"
	ActionToggle     = "toggle"
)

// Tray menu item IDs. A click on the tray icon itself is MenuOpenApp.
const (
	MenuOpenApp  = "open_app"
	MenuOpenFile = "open_file"
	MenuQuit     = "quit"
	MenuToggle   = "toggle"
)

var (
	ErrUnknownAction = errors.New("unknown window action")
	ErrUnknownMenu   = errors.New("unknown menu item")
)

// Publisher is the event sink window operations are forwarded to.
type Publisher interface {
	Publish(name string, payload any) int
}

// Controller tracks window visibility and turns operations into events.
type Controller struct {
	pub  Publisher
	quit func()

	mu      sync.Mutex
	visible bool
}

// New returns a controller for a window that starts visible. quit is called
// for the tray's quit item.
func New(pub Publisher, quit func()) *Controller {
	return &Controller{pub: pub, quit: quit, visible: true}
}

// Visible reports whether the window was last shown rather than hidden.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Controller) Show()  { c.setVisible(true, ActionShow) }
func (c *Controller) Hide()  { c.setVisible(false, ActionHide) }
func (c *Controller) Focus() { c.emit(ActionFocus) }

// Restore brings the window back from anywhere: unminimize, show, focus.
func (c *Controller) Restore() {
	c.emit(ActionUnminimize)
	c.Show()
	c.Focus()
}

// Toggle hides a visible window and restores a hidden one.
func (c *Controller) Toggle() {
	if c.Visible() {
		c.Hide()
		return
	}
	c.Restore()
}

// Window applies a named action.
func (c *Controller) Window(action string) error {
	switch action {
	case ActionShow:
		c.Show()
	case ActionHide:
		c.Hide()
	case ActionFocus:
		c.Focus()
	case ActionUnminimize:
		c.emit(ActionUnminimize)
	case ActionToggle:
		c.Toggle()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// Menu dispatches a tray menu selection.
func (c *Controller) Menu(id string) error {
	slog.Debug("tray menu selected", "item", id)
	switch id {
	case MenuOpenApp:
		c.Restore()
	case MenuOpenFile:
		c.pub.Publish(notify.EventTrayOpenFile, struct{}{})
	case MenuToggle:
		c.Toggle()
	case MenuQuit:
		slog.Info("quit requested from tray")
		if c.quit != nil {
			c.quit()
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMenu, id)
	}
	return nil
}

func (c *Controller) setVisible(v bool, action string) {
	c.mu.Lock()
	c.visible = v
	c.mu.Unlock()
	c.emit(action)
}

func (c *Controller) emit(action string) {
	c.pub.Publish(notify.EventWindow, notify.Window{Action: action})
}
