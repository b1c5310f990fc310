// Package control serves the line protocol the desktop shell speaks to the
// daemon: one Session per connection, dispatching requests to the copier,
// the pending-path store and the window controller, and streaming events
// back to subscribed connections.
package control

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/crypto"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/pending"
)

const (
	authTimeout   = 10 * time.Second
	acceptBackoff = 100 * time.Millisecond
	sendBuffer    = 64
)

// Copier schedules image copies.
type Copier interface {
	Queue(copier.Request) error
}

// Events is the notification hub.
type Events interface {
	Subscribe(notify.Subscriber)
	Unsubscribe(notify.Subscriber)
	Publish(name string, payload any) int
}

// Shell applies window and tray operations.
type Shell interface {
	Window(action string) error
	Menu(id string) error
}

// Server holds the collaborators shared by every session.
type Server struct {
	Copier  Copier
	Pending *pending.Store
	Events  Events
	Shell   Shell

	// Token, when set, must be presented in an AUTH message first.
	Token string
	// Key seals every message. Nil on the IPC socket.
	Key *crypto.Key

	mu       sync.Mutex
	sessions map[string]*Session
}

// WithAuth returns a Server sharing s's collaborators that requires token
// and seals traffic with key.
func (s *Server) WithAuth(token string, key *crypto.Key) *Server {
	return &Server{
		Copier:  s.Copier,
		Pending: s.Pending,
		Events:  s.Events,
		Shell:   s.Shell,
		Token:   token,
		Key:     key,
	}
}

// Serve accepts connections until ln is closed. Closing ln returns nil;
// other accept errors are retried when temporary and returned otherwise.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				slog.Warn("accept failed, retrying", "addr", ln.Addr(), "err", err)
				time.Sleep(acceptBackoff)
				continue
			}
			return err
		}
		go s.ServeConn(conn)
	}
}

// ServeConn runs one session on conn and returns when it ends.
func (s *Server) ServeConn(conn net.Conn) {
	sess := s.newSession(conn)
	s.track(sess, true)
	defer s.track(sess, false)
	sess.serve()
}

// CloseAll terminates every active session.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
}

func (s *Server) track(sess *Session, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string]*Session)
	}
	if add {
		s.sessions[sess.id] = sess
	} else {
		delete(s.sessions, sess.id)
	}
}

// OpenFiles hands relayed paths to the UI. They are announced as an event;
// if no UI is listening yet they wait in the pending store instead.
func (s *Server) OpenFiles(paths []string) {
	paths = pending.ResolveAll(paths)
	if len(paths) == 0 {
		return
	}
	if s.Events.Publish(notify.EventOpenFiles, notify.OpenFiles{FilePaths: paths}) == 0 {
		s.Pending.Append(paths...)
	}
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
