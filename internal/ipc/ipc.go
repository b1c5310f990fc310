// Package ipc locates and opens the local socket the desktop shell and the
// omnimarkd CLI use to reach a running daemon.
//
// The socket doubles as the single-instance lock: a second omnimarkd process
// that finds a live socket relays its file arguments to the first instance
// instead of starting another daemon.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	socketName  = "omnimark.sock"
	dialTimeout = 2 * time.Second
)

// ErrAlreadyRunning is returned by Listen when another instance owns the socket.
var ErrAlreadyRunning = errors.New("another instance is listening")

// SocketPath returns the IPC socket path:
//
//   - $OMNIMARK_SOCKET when set
//   - $XDG_RUNTIME_DIR/omnimark.sock on Linux desktops
//   - $TMPDIR/omnimark.sock otherwise
func SocketPath() string {
	if s := os.Getenv("OMNIMARK_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), socketName)
}

// IsRunning reports whether a daemon is listening on path. It does a cheap
// dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Dial connects to the daemon at path.
func Dial(path string) (net.Conn, error) {
	c, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("ipc dial %s: %w", path, err)
	}
	return c, nil
}

// Listen creates the socket at path, removing a stale file left by a crashed
// run. The socket is restricted to the current user.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, ErrAlreadyRunning
	}
	_ = os.Remove(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ipc socket dir: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("ipc chmod: %w", err)
	}
	return ln, nil
}
