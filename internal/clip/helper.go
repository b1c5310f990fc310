package clip

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.klb.dev/omnimark/internal/imagecodec"
)

// MIMEPlaceholder in Helper.Args is replaced with the payload's MIME type.
const MIMEPlaceholder = "{mime}"

// DefaultWaitDelay bounds how long Write waits for the helper's stdio to
// close once the process has exited. wl-copy forks a background owner that
// can inherit stderr.
const DefaultWaitDelay = 5 * time.Second

// Helper is the fallback writer. It speaks the compositor's clipboard
// protocol through an external program: the original container bytes are
// streamed to the program's stdin and its exit status decides the result.
type Helper struct {
	Command   string
	Args      []string
	WaitDelay time.Duration
}

// NewHelper returns a Helper for command. Empty args select the platform
// default argument list.
func NewHelper(command string, args []string, waitDelay time.Duration) *Helper {
	if len(args) == 0 {
		_, args = defaultHelper()
	}
	return &Helper{Command: command, Args: args, WaitDelay: waitDelay}
}

// DefaultHelper returns the platform's default helper, which may have an
// empty Command when the platform has none.
func DefaultHelper() *Helper {
	cmd, args := defaultHelper()
	return &Helper{Command: cmd, Args: args, WaitDelay: DefaultWaitDelay}
}

func (h *Helper) Name() string {
	if h.Command == "" {
		return "helper"
	}
	return filepath.Base(h.Command)
}

// Write spawns the helper, streams p.Raw to its stdin, closes stdin and waits
// for it to exit. Failures are *SpawnError, *WriteError or *HelperExitError.
func (h *Helper) Write(ctx context.Context, p *Payload) error {
	name := h.Name()
	if h.Command == "" {
		return &SpawnError{Helper: name, Err: errNoHelper}
	}

	cmd := exec.CommandContext(ctx, h.Command, h.args(p.MIME)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = h.WaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Helper: name, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &SpawnError{Helper: name, Err: err}
	}
	slog.Debug("clipboard helper started", "helper", name, "pid", cmd.Process.Pid, "size_bytes", len(p.Raw))

	_, werr := stdin.Write(p.Raw)
	if cerr := stdin.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = cmd.Wait()
		return &WriteError{Helper: name, Err: werr}
	}

	err = cmd.Wait()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exec.ErrWaitDelay):
		// Exited zero; a forked child still holds stderr.
		slog.Debug("clipboard helper left stdio open", "helper", name)
		return nil
	}
	exitErr := &HelperExitError{Helper: name, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.Code = ee.ExitCode()
	}
	return exitErr
}

func (h *Helper) args(mime string) []string {
	if mime == "" {
		mime = imagecodec.DefaultMIME
	}
	out := make([]string, len(h.Args))
	for i, a := range h.Args {
		out[i] = strings.ReplaceAll(a, MIMEPlaceholder, mime)
	}
	return out
}
