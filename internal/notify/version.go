package notify

import "sync/atomic"

// VersionTracker is the caller side of copy-result disambiguation. The
// caller issues a fresh version per request and keeps only results that
// match the newest one; late results for superseded requests are stale.
type VersionTracker struct {
	latest atomic.Uint32
}

// Next issues and records a new, strictly increasing version.
func (t *VersionTracker) Next() uint32 { return t.latest.Add(1) }

// Latest returns the most recently issued version.
func (t *VersionTracker) Latest() uint32 { return t.latest.Load() }

// Current reports whether r answers the newest outstanding request.
func (t *VersionTracker) Current(r CopyResult) bool { return r.Version == t.latest.Load() }

// Chan is a Subscriber backed by a buffered channel. Events that do not fit
// are dropped.
type Chan struct {
	id    string
	ch    chan Event
	names map[string]bool
}

// NewChan returns a channel subscriber with room for size events. When
// names are given only those events are accepted.
func NewChan(id string, size int, names ...string) *Chan {
	c := &Chan{id: id, ch: make(chan Event, size)}
	if len(names) > 0 {
		c.names = make(map[string]bool, len(names))
		for _, n := range names {
			c.names[n] = true
		}
	}
	return c
}

func (c *Chan) ID() string { return c.id }

func (c *Chan) Send(ev Event) bool {
	if c.names != nil && !c.names[ev.Name] {
		return false
	}
	select {
	case c.ch <- ev:
		return true
	default:
		return false
	}
}

// C returns the receive side.
func (c *Chan) C() <-chan Event { return c.ch }
