package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const (
	eventBufferSize = 16
	maxFrameBytes   = 64 * 1024
)

// wireFrame is the single frame shape for both directions of the
// newline-delimited JSON protocol; unused fields stay empty.
type wireFrame struct {
	Type          string  `json:"type"`
	Identity      string  `json:"identity,omitempty"`
	Secret        string  `json:"secret,omitempty"`
	SessionToken  string  `json:"sessionToken,omitempty"`
	AppearOffline bool    `json:"appearOffline,omitempty"`
	Activities    []int64 `json:"activities,omitempty"`
	Title         string  `json:"title,omitempty"`
	Token         string  `json:"token,omitempty"`
	Kind          string  `json:"kind,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

type tcpClient struct {
	addr   string
	events chan Event

	// done is closed by Disconnect so a reader blocked on a full event
	// buffer retires instead of holding the connection open.
	done     chan struct{}
	doneOnce sync.Once

	// wmu guards conn and serializes frame writes.
	wmu    sync.Mutex
	conn   net.Conn
	closed atomic.Bool
}

// NewDialer returns a Dialer producing clients that speak the keeper's
// newline-delimited JSON protocol over TCP against addr.
func NewDialer(addr string) Dialer {
	return func() Client {
		return &tcpClient{
			addr:   addr,
			events: make(chan Event, eventBufferSize),
			done:   make(chan struct{}),
		}
	}
}

func (c *tcpClient) Connect(ctx context.Context, creds Credentials) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		close(c.events)
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()

	// Stopped while the dial was in flight: the session owning this client
	// is already gone, so the identity must not go live remotely.
	if c.closed.Load() {
		conn.Close()
		close(c.events)
		return nil
	}

	login := wireFrame{Type: "login", Identity: creds.Identity}
	if creds.SessionToken != nil && *creds.SessionToken != "" {
		login.SessionToken = *creds.SessionToken
	} else if creds.Secret != nil {
		login.Secret = *creds.Secret
	}

	if err := c.send(login); err != nil {
		conn.Close()
		close(c.events)
		return fmt.Errorf("send login: %w", err)
	}

	go c.readLoop()
	return nil
}

func (c *tcpClient) DeclarePresence(appearOffline bool) error {
	return c.send(wireFrame{Type: "presence", AppearOffline: appearOffline})
}

func (c *tcpClient) DeclareActivities(activities []int64, title string) error {
	return c.send(wireFrame{Type: "activities", Activities: activities, Title: title})
}

func (c *tcpClient) Disconnect() error {
	first := c.closed.CompareAndSwap(false, true)
	c.doneOnce.Do(func() { close(c.done) })
	if !first {
		return nil
	}

	c.wmu.Lock()
	conn := c.conn
	c.wmu.Unlock()
	if conn == nil {
		// Not dialed yet; Connect observes the closed flag and cleans up.
		return nil
	}

	// Best-effort logoff; the read loop closes the event channel once the
	// connection goes down.
	_ = c.send(wireFrame{Type: "logoff"})
	return conn.Close()
}

func (c *tcpClient) Events() <-chan Event {
	return c.events
}

func (c *tcpClient) send(f wireFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_, err = c.conn.Write(append(payload, '\n'))
	return err
}

// emit delivers one event, giving up when Disconnect has retired the
// client. Returns false once delivery is no longer possible.
func (c *tcpClient) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *tcpClient) readLoop() {
	defer close(c.events)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)

	for scanner.Scan() {
		var f wireFrame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			log.Warn().Err(err).Str("addr", c.addr).Msg("skipping malformed frame")
			continue
		}

		var delivered bool
		switch f.Type {
		case "established":
			delivered = c.emit(Established{})
		case "token":
			delivered = c.emit(TokenRotated{Token: f.Token})
		case "error":
			delivered = c.emit(RecoverableError{Kind: errorKindFromWire(f.Kind)})
		case "disconnect":
			c.emit(Disconnected{Reason: reasonFromWire(f.Reason)})
			c.closed.Store(true)
			c.conn.Close()
			return
		default:
			log.Warn().Str("frameType", f.Type).Msg("skipping unknown frame")
			continue
		}
		if !delivered {
			c.conn.Close()
			return
		}
	}

	// Connection dropped without a disconnect frame. Suppressed when the
	// supervisor asked for the logoff itself.
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
		c.emit(Disconnected{Reason: ReasonOrdinary})
	}
}

func errorKindFromWire(kind string) ErrorKind {
	switch kind {
	case "throttled":
		return ErrorKindThrottled
	case "elsewhere":
		return ErrorKindElsewhereCollision
	default:
		return ErrorKindOther
	}
}

func reasonFromWire(reason string) DisconnectReason {
	if reason == "elsewhere" {
		return ReasonElsewhere
	}
	return ReasonOrdinary
}
