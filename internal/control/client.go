package control

import (
	"fmt"
	"net"

	"go.klb.dev/omnimark/internal/crypto"
	"go.klb.dev/omnimark/internal/message"
	"go.klb.dev/omnimark/internal/notify"
	"go.klb.dev/omnimark/internal/wire"
)

// Client is the requesting side of a control connection. It is used by the
// omnimarkd CLI and by a second instance relaying its arguments. A Client is
// not safe for concurrent use.
type Client struct {
	conn *wire.Conn
	// events read while waiting for a reply, handed out by Next first.
	stash []*message.Message
}

// NewClient wraps an established connection. When token is non-empty it
// authenticates first.
func NewClient(conn net.Conn, token, source string) (*Client, error) {
	key, err := crypto.KeyForToken(token)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: wire.New(conn, key)}
	if token != "" {
		if _, err := c.request(message.NewAuth(token, source)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// CopyImage queues a copy. It returns once the daemon has scheduled the
// request; the result arrives later as an event.
func (c *Client) CopyImage(imageBase64 string, version uint32) error {
	_, err := c.request(&message.Message{Type: message.TypeCopyImage, Image: imageBase64, Version: version})
	return err
}

// PendingFiles drains the daemon's pending paths.
func (c *Client) PendingFiles() ([]string, error) {
	reply, err := c.request(&message.Message{Type: message.TypeGetPending})
	if err != nil {
		return nil, err
	}
	if reply.Paths == nil {
		return []string{}, nil
	}
	return reply.Paths, nil
}

// OpenFiles relays paths to the running instance.
func (c *Client) OpenFiles(paths []string) error {
	_, err := c.request(&message.Message{Type: message.TypeOpenFiles, Paths: paths})
	return err
}

// Window requests a window action.
func (c *Client) Window(action string) error {
	_, err := c.request(&message.Message{Type: message.TypeWindow, Action: action})
	return err
}

// Menu sends a tray menu selection.
func (c *Client) Menu(id string) error {
	_, err := c.request(&message.Message{Type: message.TypeMenu, Action: id})
	return err
}

// Subscribe starts event delivery on this connection, limited to events
// when any are named. Relayed open-files events delivered here are not kept
// in the pending store, so only the UI should subscribe to them.
func (c *Client) Subscribe(events ...string) error {
	_, err := c.request(&message.Message{Type: message.TypeSubscribe, Events: events})
	return err
}

// Monitor starts delivery of every event without taking any of them.
func (c *Client) Monitor() error {
	_, err := c.request(&message.Message{Type: message.TypeSubscribe, Monitor: true})
	return err
}

// Next blocks for the next event.
func (c *Client) Next() (*message.Message, error) {
	if len(c.stash) > 0 {
		msg := c.stash[0]
		c.stash = c.stash[1:]
		return msg, nil
	}
	for {
		msg, err := c.conn.ReadMsg()
		if err != nil {
			return nil, err
		}
		if msg.Type == message.TypeEvent {
			return msg, nil
		}
	}
}

// CopyAndWait subscribes, queues the image and waits for the result whose
// version matches. Results for other versions are stale and skipped.
func (c *Client) CopyAndWait(imageBase64 string, version uint32) (notify.CopyResult, error) {
	if err := c.Subscribe(notify.EventCopyResult); err != nil {
		return notify.CopyResult{}, err
	}
	if err := c.CopyImage(imageBase64, version); err != nil {
		return notify.CopyResult{}, err
	}
	for {
		msg, err := c.Next()
		if err != nil {
			return notify.CopyResult{}, err
		}
		if msg.Event != notify.EventCopyResult {
			continue
		}
		var r notify.CopyResult
		if err := msg.DecodePayload(&r); err != nil {
			return notify.CopyResult{}, err
		}
		if r.Version == version {
			return r, nil
		}
	}
}

// request writes msg and reads until its reply, stashing events that
// arrive in between.
func (c *Client) request(msg *message.Message) (*message.Message, error) {
	if err := c.conn.WriteMsg(msg); err != nil {
		return nil, err
	}
	for {
		reply, err := c.conn.ReadMsg()
		if err != nil {
			return nil, err
		}
		switch reply.Type {
		case message.TypeEvent:
			c.stash = append(c.stash, reply)
		case message.TypeError:
			return nil, fmt.Errorf("daemon: %s", reply.Error)
		default:
			return reply, nil
		}
	}
}
