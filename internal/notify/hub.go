// Package notify delivers out-of-band events (copy results, relayed file
// opens, window requests) to whichever UI connections are listening.
//
// Delivery is fire-and-forget: subscribers receive events through a
// non-blocking Send, and an event published while nobody is subscribed is
// dropped. Nothing is queued or replayed.
package notify

import (
	"log/slog"
	"sync"
)

// Event names as seen by the UI layer.
const (
	EventCopyResult   = "clipboard-copy-result"
	EventOpenFiles    = "open-files"
	EventWindow       = "window"
	EventTrayOpenFile = "tray-open-file"
)

// Event is one notification. Payload is JSON-serialisable.
type Event struct {
	Name    string
	Payload any
}

// CopyResult is the payload of EventCopyResult. Error is nil on success.
type CopyResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Version uint32  `json:"version"`
}

// OpenFiles is the payload of EventOpenFiles.
type OpenFiles struct {
	FilePaths []string `json:"file_paths"`
}

// Window is the payload of EventWindow.
type Window struct {
	Action string `json:"action"`
}

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	// Send offers an event to the subscriber and reports whether it was
	// taken. Filtered, dropped and merely observed events return false.
	// Must be non-blocking.
	Send(Event) bool
}

// Hub fans events out to all registered subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string]Subscriber)}
}

// Subscribe adds s. A subscriber with the same ID is replaced.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	total := len(h.subs)
	h.mu.Unlock()

	slog.Info("subscriber registered", "subscriber", s.ID(), "total", total)
}

// Unsubscribe removes s.
func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	total := len(h.subs)
	h.mu.Unlock()

	slog.Info("subscriber unregistered", "subscriber", s.ID(), "total", total)
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish offers the event to every subscriber and returns how many took it.
func (h *Hub) Publish(name string, payload any) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	ev := Event{Name: name, Payload: payload}
	taken := 0
	for _, s := range targets {
		if s.Send(ev) {
			taken++
		}
	}
	logEvent(ev, taken)
	return taken
}

// PublishCopyResult publishes EventCopyResult for version. A nil err is a success.
func (h *Hub) PublishCopyResult(version uint32, err error) int {
	return h.Publish(EventCopyResult, NewCopyResult(version, err))
}

// NewCopyResult builds the payload for a finished copy request.
func NewCopyResult(version uint32, err error) CopyResult {
	r := CopyResult{Success: err == nil, Version: version}
	if err != nil {
		msg := err.Error()
		r.Error = &msg
	}
	return r
}
