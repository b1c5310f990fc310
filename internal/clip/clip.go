// Package clip places images on the system clipboard.
//
// Two interchangeable Writers are provided and tried in fixed order by the
// copier:
//
//	native.go       primary, golang.design/x/clipboard (no child processes)
//	helper.go       fallback, streams the original bytes to a helper
//	                process such as wl-copy
//	helper_linux.go default helper command per platform
//	helper_other.go
package clip

import (
	"context"

	"go.klb.dev/omnimark/internal/imagecodec"
)

// Payload is one image to place on the clipboard. Raw holds the original
// container bytes; Image is nil when those bytes could not be decoded.
type Payload struct {
	Raw   []byte
	MIME  string
	Image *imagecodec.Image
}

// Writer is the interface both clipboard strategies satisfy.
type Writer interface {
	// Name returns a human-readable name for the writer.
	Name() string

	// Write places p on the clipboard, blocking until the write is done.
	Write(ctx context.Context, p *Payload) error
}
