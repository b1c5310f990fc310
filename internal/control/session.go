package control

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"go.klb.dev/omnimark/internal/copier"
	"go.klb.dev/omnimark/internal/message"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/wire"
)

// Session is one control connection. Once subscribed it is also a
// notify.Subscriber.
type Session struct {
	id      string
	srv     *Server
	conn    *wire.Conn
	sendCh  chan *message.Message
	done    chan struct{}
	flushed chan struct{} // closed when the writer exits
	log     *slog.Logger

	sub atomic.Pointer[subscription]
}

// subscription is what a SUBSCRIBE asked for.
type subscription struct {
	events  map[string]bool // nil = all
	monitor bool
}

func newSubscription(msg *message.Message) *subscription {
	sub := &subscription{monitor: msg.Monitor}
	if len(msg.Events) > 0 {
		sub.events = make(map[string]bool, len(msg.Events))
		for _, e := range msg.Events {
			sub.events[e] = true
		}
	}
	return sub
}

func (s *subscription) wants(name string) bool {
	return s.events == nil || s.events[name]
}

func (s *Server) newSession(conn net.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		srv:     s,
		conn:    wire.New(conn, s.Key),
		sendCh:  make(chan *message.Message, sendBuffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		log:     slog.With("session", id, "remote", conn.RemoteAddr().String()),
	}
}

func (ss *Session) ID() string { return ss.id }

// Send implements notify.Subscriber. A monitor session reports every event
// as not taken.
func (ss *Session) Send(ev notify.Event) bool {
	sub := ss.sub.Load()
	if sub == nil || !sub.wants(ev.Name) {
		return false
	}
	msg, err := message.NewEvent(ev.Name, ev.Payload)
	if err != nil {
		ss.log.Error("event encode failed", "event", ev.Name, "err", err)
		return false
	}
	select {
	case <-ss.done:
		return false
	case ss.sendCh <- msg:
		return !sub.monitor
	default:
		ss.log.Warn("session send channel full, dropping event", "event", ev.Name)
		return false
	}
}

// enqueue queues a reply to a request. Unlike events, replies wait for room
// in the send buffer; they are discarded only once the writer has stopped.
func (ss *Session) enqueue(msg *message.Message) {
	select {
	case ss.sendCh <- msg:
	case <-ss.flushed:
		ss.log.Debug("writer gone, reply discarded", "type", msg.Type)
	}
}

// writeLoop sends queued messages until done, then flushes what is left.
func (ss *Session) writeLoop() {
	defer close(ss.flushed)
	for {
		select {
		case msg := <-ss.sendCh:
			if !ss.write(msg) {
				return
			}
		case <-ss.done:
			for {
				select {
				case msg := <-ss.sendCh:
					if !ss.write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (ss *Session) write(msg *message.Message) bool {
	if err := ss.conn.WriteMsg(msg); err != nil {
		ss.log.Debug("write failed", "err", err)
		_ = ss.conn.Close()
		return false
	}
	return true
}

func (ss *Session) serve() {
	defer ss.conn.Close()

	if ss.srv.Token != "" && !ss.authenticate() {
		return
	}

	go ss.writeLoop()
	defer func() {
		if ss.sub.Load() != nil {
			ss.srv.Events.Unsubscribe(ss)
		}
		close(ss.done)
		<-ss.flushed
	}()

	ss.log.Debug("session started")
	for {
		msg, err := ss.conn.ReadMsg()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				ss.log.Info("session closed", "err", err)
			}
			return
		}
		ss.handle(msg)
	}
}

func (ss *Session) authenticate() bool {
	ss.conn.SetReadDeadline(authTimeout)
	msg, err := ss.conn.ReadMsg()
	ss.conn.SetReadDeadline(0)
	if err != nil {
		ss.log.Warn("auth read failed", "err", err)
		return false
	}
	if msg.Type != message.TypeAuth || !tokenMatches(msg.AuthToken(), ss.srv.Token) {
		ss.log.Warn("auth failed")
		_ = ss.conn.WriteMsg(message.Errorf("auth_failed"))
		return false
	}
	ss.log.Info("authenticated", "source", msg.Source)
	return ss.conn.WriteMsg(&message.Message{Type: message.TypeAck}) == nil
}

func (ss *Session) handle(msg *message.Message) {
	switch msg.Type {
	case message.TypeCopyImage:
		err := ss.srv.Copier.Queue(copier.Request{Image: msg.Image, Version: msg.Version})
		if err != nil {
			reply := message.Errorf("schedule copy: %v", err)
			reply.Version = msg.Version
			ss.enqueue(reply)
			return
		}
		ss.log.Debug("copy queued", "version", msg.Version, "size_bytes", len(msg.Image))
		ss.enqueue(&message.Message{Type: message.TypeAck, Version: msg.Version})

	case message.TypeGetPending:
		ss.enqueue(&message.Message{Type: message.TypePending, Paths: ss.srv.Pending.Drain()})

	case message.TypeOpenFiles:
		ss.log.Info("files relayed from another instance", "paths", msg.Paths)
		ss.srv.OpenFiles(msg.Paths)
		ss.enqueue(&message.Message{Type: message.TypeAck})

	case message.TypeSubscribe:
		if ss.sub.Swap(newSubscription(msg)) == nil {
			ss.srv.Events.Subscribe(ss)
		}
		ss.enqueue(&message.Message{Type: message.TypeAck})

	case message.TypeWindow:
		ss.reply(ss.srv.Shell.Window(msg.Action))

	case message.TypeMenu:
		ss.reply(ss.srv.Shell.Menu(msg.Action))

	case message.TypePing:
		ss.enqueue(&message.Message{Type: message.TypePong})

	case message.TypePong:

	default:
		ss.log.Warn("unexpected message type", "type", msg.Type)
		ss.enqueue(message.Errorf("unexpected message type %q", msg.Type))
	}
}

func (ss *Session) reply(err error) {
	if err != nil {
		ss.enqueue(message.Errorf("%v", err))
		return
	}
	ss.enqueue(&message.Message{Type: message.TypeAck})
}
