package clip

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"golang.design/x/clipboard"
)

// Native writes decoded images through golang.design/x/clipboard, which talks
// to the platform clipboard API directly (NSPasteboard, Win32, X11).
type Native struct {
	disabled bool

	initOnce sync.Once
	initErr  error

	// Overridable for tests.
	initFn  func() error
	writeFn func(clipboard.Format, []byte) <-chan struct{}
}

// NewNative returns the primary writer. clipboard.Init is deferred to the
// first Write so that CLI sub-commands never touch the display server. When
// disabled is true every Write reports ErrUnavailable.
func NewNative(disabled bool) *Native {
	return &Native{
		disabled: disabled,
		initFn:   clipboard.Init,
		writeFn:  clipboard.Write,
	}
}

func (n *Native) Name() string { return "native clipboard" }

// Write encodes the decoded pixels as PNG, the interchange format the
// clipboard library expects for images, and hands them to the OS.
func (n *Native) Write(_ context.Context, p *Payload) error {
	if n.disabled {
		return fmt.Errorf("%w: disabled by configuration", ErrUnavailable)
	}
	n.initOnce.Do(func() { n.initErr = n.initFn() })
	if n.initErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, n.initErr)
	}
	if p.Image == nil {
		return fmt.Errorf("%w: no decoded image", ErrWriteFailed)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image.NRGBA()); err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWriteFailed, err)
	}
	// The library returns nil when the platform rejects the write.
	if changed := n.writeFn(clipboard.FmtImage, buf.Bytes()); changed == nil {
		return fmt.Errorf("%w: image rejected by the platform clipboard", ErrWriteFailed)
	}
	return nil
}
