// Package client is the Go SDK for notchkit extensions. It dials the host's
// extension socket, issues calls and surfaces host notifications.
//
//	c, err := client.Dial(ctx, client.DefaultSocketPath(), "com.example.weather")
//	if err != nil { ... }
//	defer c.Close()
//
//	if ok, err := c.RequestAuthorization(ctx); err != nil || !ok { ... }
//	err = c.Present(ctx, descriptor.LiveActivity{...})
//
//	for n := range c.Notifications() { ... }
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

// InstanceHeader carries a random per-client id the host logs for
// correlation. It has no bearing on identity.
const InstanceHeader = "X-Notchkit-Instance"

var (
	ErrClosed   = errors.New("client: connection closed")
	ErrRejected = errors.New("client: host rejected connection")
)

// DefaultSocketPath mirrors the host's default socket location.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "notchkit", "extensions.sock")
}

// Client is one connection to the host. Safe for concurrent use.
type Client struct {
	ws         *websocket.Conn
	identity   string
	instanceID string

	seq atomic.Uint64
	wmu sync.Mutex

	pmu     sync.Mutex
	pending map[uint64]chan protocol.Reply
	closed  bool

	notifications chan protocol.Notification
	done          chan struct{}
}

// Dial connects to the host socket. identity is the bundle id the caller
// claims; the host checks it against the identity it resolves itself.
func Dial(ctx context.Context, socketPath, identity string) (*Client, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}

	instanceID := uuid.NewString()
	header := http.Header{}
	header.Set(InstanceHeader, instanceID)

	ws, resp, err := dialer.DialContext(ctx, "ws://notchkit/v1/connect", header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}

	c := &Client{
		ws:            ws,
		identity:      identity,
		instanceID:    instanceID,
		pending:       make(map[uint64]chan protocol.Reply),
		notifications: make(chan protocol.Notification, 64),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// InstanceID returns the correlation id sent on connect.
func (c *Client) InstanceID() string { return c.instanceID }

// Notifications delivers host pushes. It is closed when the connection
// ends. Notifications are dropped if the channel is not drained.
func (c *Client) Notifications() <-chan protocol.Notification { return c.notifications }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

// Call sends a raw request and waits for its reply.
func (c *Client) Call(ctx context.Context, method protocol.Method, params protocol.Params) (protocol.Reply, error) {
	seq := c.seq.Add(1)
	ch := make(chan protocol.Reply, 1)

	c.pmu.Lock()
	if c.closed {
		c.pmu.Unlock()
		return protocol.Reply{}, ErrClosed
	}
	c.pending[seq] = ch
	c.pmu.Unlock()

	data, err := protocol.Marshal(protocol.NewRequest(seq, method, params))
	if err != nil {
		c.forget(seq)
		return protocol.Reply{}, fmt.Errorf("encode request: %w", err)
	}

	c.wmu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()
	if err != nil {
		c.forget(seq)
		return protocol.Reply{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return protocol.Reply{}, ErrClosed
		}
		return r, nil
	case <-ctx.Done():
		c.forget(seq)
		return protocol.Reply{}, ctx.Err()
	}
}

// RequestAuthorization asks the host to authorize this extension.
func (c *Client) RequestAuthorization(ctx context.Context) (bool, error) {
	r, err := c.call(ctx, protocol.MethodRequestAuthorization, protocol.Params{Identity: c.identity})
	if err != nil {
		return false, err
	}
	return r.Granted != nil && *r.Granted, nil
}

// CheckAuthorization reports the current authorization without changing it.
func (c *Client) CheckAuthorization(ctx context.Context) (bool, error) {
	r, err := c.call(ctx, protocol.MethodCheckAuthorization, protocol.Params{Identity: c.identity})
	if err != nil {
		return false, err
	}
	return r.Granted != nil && *r.Granted, nil
}

// Version returns the host version.
func (c *Client) Version(ctx context.Context) (string, error) {
	r, err := c.call(ctx, protocol.MethodGetVersion, protocol.Params{})
	if err != nil {
		return "", err
	}
	return r.Version, nil
}

// Present shows d, replacing any item with the same id.
func (c *Client) Present(ctx context.Context, d descriptor.Descriptor) error {
	return c.send(ctx, protocol.OpPresent, d)
}

// Update replaces the content of a presented item.
func (c *Client) Update(ctx context.Context, d descriptor.Descriptor) error {
	return c.send(ctx, protocol.OpUpdate, d)
}

// Dismiss removes an item. Dismissing an unknown id succeeds.
func (c *Client) Dismiss(ctx context.Context, kind descriptor.Kind, id string) error {
	m, ok := protocol.MethodFor(protocol.OpDismiss, kind)
	if !ok {
		return fmt.Errorf("client: unknown kind %q", kind)
	}
	_, err := c.call(ctx, m, protocol.Params{Identity: c.identity, ID: id})
	return err
}

func (c *Client) send(ctx context.Context, op protocol.Op, d descriptor.Descriptor) error {
	m, ok := protocol.MethodFor(op, d.Kind())
	if !ok {
		return fmt.Errorf("client: unknown kind %q", d.Kind())
	}
	raw, err := descriptor.Encode(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	_, err = c.call(ctx, m, protocol.Params{Descriptor: raw})
	return err
}

// call turns a failed reply into its *protocol.Error.
func (c *Client) call(ctx context.Context, m protocol.Method, p protocol.Params) (protocol.Reply, error) {
	r, err := c.Call(ctx, m, p)
	if err != nil {
		return r, err
	}
	if !r.OK {
		if r.Error != nil {
			return r, r.Error
		}
		return r, protocol.Errorf(protocol.CodeDecodeFailure, "call failed without error")
	}
	return r, nil
}

func (c *Client) forget(seq uint64) {
	c.pmu.Lock()
	delete(c.pending, seq)
	c.pmu.Unlock()
}

func (c *Client) readLoop() {
	defer func() {
		c.pmu.Lock()
		c.closed = true
		for seq, ch := range c.pending {
			close(ch)
			delete(c.pending, seq)
		}
		c.pmu.Unlock()
		close(c.notifications)
		close(c.done)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeInbound(data)
		if err != nil {
			continue
		}

		switch f := frame.(type) {
		case protocol.Reply:
			c.pmu.Lock()
			ch, ok := c.pending[f.Seq]
			delete(c.pending, f.Seq)
			c.pmu.Unlock()
			if ok {
				ch <- f
			}
		case protocol.Notification:
			select {
			case c.notifications <- f:
			default:
			}
		}
	}
}
