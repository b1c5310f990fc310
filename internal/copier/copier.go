// Package copier runs image copy requests off the caller's path.
//
// Queue hands a request to a small worker pool and returns at once. A worker
// then walks the request through
//
//	Idle → Decoding → PrimaryAttempt → (Success | FallbackAttempt) → (Success | Failed)
//
// and reports exactly one Outcome to the Notifier. Stages of one request run
// in sequence on one worker; separate requests may finish in any order.
package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/omnimark/internal/clip"
	"go.klb.dev/omnimark/internal/imagecodec"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
)

// Scheduling failures, the only errors Queue reports.
var (
	ErrQueueFull = errors.New("copy queue full")
	ErrClosed    = errors.New("copier closed")
)

// State is a step of the per-request state machine.
type State string

const (
	StateIdle            State = "idle"
	StateDecoding        State = "decoding"
	StatePrimaryAttempt  State = "primary"
	StateFallbackAttempt State = "fallback"
	StateSuccess         State = "success"
	StateFailed          State = "failed"
)

// Request is one copy invocation: a base64 image and the caller's version tag.
type Request struct {
	Image   string
	Version uint32
}

// Outcome is the single result produced for a Request.
type Outcome struct {
	Version uint32
	// Err is nil on success and otherwise the terminal error.
	Err error
	// Writer names the writer that placed the image, empty on failure.
	Writer string
}

// Succeeded reports whether the image reached the clipboard.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Notifier receives outcomes. It is called from worker goroutines.
type Notifier interface {
	Notify(Outcome)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Outcome)

func (f NotifierFunc) Notify(o Outcome) { f(o) }

// Config sizes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Copier owns the worker pool.
type Copier struct {
	primary  clip.Writer
	fallback clip.Writer
	notifier Notifier
	queue    chan Request
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// observe, when set, sees every state transition. Used by tests.
	observe func(version uint32, s State)
}

// New starts cfg.Workers workers. primary is tried first; fallback receives
// the original bytes when primary is unavailable, fails, or the bytes could
// not be decoded.
func New(primary, fallback clip.Writer, n Notifier, cfg Config) *Copier {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	c := &Copier{
		primary:  primary,
		fallback: fallback,
		notifier: n,
		queue:    make(chan Request, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	slog.Debug("copier started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return c
}

// Queue schedules req and returns immediately. The result arrives later
// through the Notifier.
func (c *Copier) Queue(req Request) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.queue <- req:
		return nil
	default:
		slog.Warn("copy queue full, rejecting request", "version", req.Version)
		return ErrQueueFull
	}
}

// Close stops accepting requests and waits for queued ones to finish.
func (c *Copier) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Copier) worker() {
	defer c.wg.Done()
	// Requests run to completion; there is no cancellation.
	ctx := context.Background()
	for req := range c.queue {
		o := c.safeRun(ctx, req)
		if c.notifier != nil {
			c.notifier.Notify(o)
		}
	}
}

func (c *Copier) safeRun(ctx context.Context, req Request) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("copy request panicked", "version", req.Version, "panic", r)
			o = Outcome{Version: req.Version, Err: fmt.Errorf("internal error: %v", r)}
		}
	}()
	return c.Run(ctx, req)
}

// Run processes req synchronously on the calling goroutine.
func (c *Copier) Run(ctx context.Context, req Request) Outcome {
	log := slog.With("version", req.Version)
	c.enter(req.Version, StateDecoding)

	raw, err := imagecodec.DecodeText(req.Image)
	if err != nil {
		// Without raw bytes there is nothing for the fallback to send.
		return c.fail(log, req.Version, err)
	}
	p := &clip.Payload{Raw: raw, MIME: imagecodec.DefaultMIME}

	img, err := imagecodec.Decode(raw)
	if err != nil {
		log.Warn("image decode failed, skipping primary clipboard", "err", err)
	} else {
		p.Image = img
		p.MIME = img.MIME()
		c.enter(req.Version, StatePrimaryAttempt)
		if err = c.primary.Write(ctx, p); err == nil {
			return c.succeed(log, req.Version, c.primary.Name())
		}
		log.Warn("primary clipboard failed, trying fallback", "writer", c.primary.Name(), "err", err)
	}

	c.enter(req.Version, StateFallbackAttempt)
	if err := c.fallback.Write(ctx, p); err != nil {
		return c.fail(log, req.Version, err)
	}
	return c.succeed(log, req.Version, c.fallback.Name())
}

func (c *Copier) enter(version uint32, s State) {
	slog.Debug("copy state", "version", version, "state", s)
	if c.observe != nil {
		c.observe(version, s)
	}
}

func (c *Copier) succeed(log *slog.Logger, version uint32, writer string) Outcome {
	c.enter(version, StateSuccess)
	log.Info("image copied to clipboard", "writer", writer)
	return Outcome{Version: version, Writer: writer}
}

func (c *Copier) fail(log *slog.Logger, version uint32, err error) Outcome {
	c.enter(version, StateFailed)
	log.Error("image copy failed", "err", err)
	return Outcome{Version: version, Err: err}
}
