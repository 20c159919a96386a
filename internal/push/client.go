package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/marcostaira/app-whatsapp/internal/reconciler"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var (
	errNotConnected = errors.New("not connected")

	// ErrUnauthorized is returned when the relay rejects the token. Retrying
	// will not help.
	ErrUnauthorized = errors.New("relay rejected token")
)

// Client manages the WebSocket connection to the relay.
type Client struct {
	url    string
	token  string
	log    zerolog.Logger
	dialer *websocket.Dialer

	baseDelay time.Duration
	maxDelay  time.Duration

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises pings
	conn       *websocket.Conn
	seq        uint64
	pingCancel context.CancelFunc
}

func New(url, token string, logger zerolog.Logger) *Client {
	return &Client{
		url:       url,
		token:     token,
		log:       logger.With().Str("component", "push").Logger(),
		dialer:    websocket.DefaultDialer,
		baseDelay: reconnectBaseDelay,
		maxDelay:  reconnectMaxDelay,
	}
}

// --- Bubble Tea messages ---

type ConnectedMsg struct{}

type DisconnectedMsg struct{ Err error }

// SnapshotMsg carries the relay's recent events, sent once per connect.
type SnapshotMsg struct{ Events []Event }

// EventMsg is a live webhook. Status is set for connection-related events.
type EventMsg struct {
	Event   Event
	Webhook *Webhook
	Status  *reconciler.StatusEvent
}

type ClearedMsg struct{ Count int }

// Listen returns a command that dials with exponential backoff until it
// connects or ctx ends. It yields ConnectedMsg, or DisconnectedMsg when the
// relay rejects the token.
func (c *Client) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return DisconnectedMsg{Err: err}
		}
		return ConnectedMsg{}
	}
}

// ReadLoop returns a command that reads until the next dispatchable message.
// Start it after ConnectedMsg and again after every message it yields. Once
// ctx ends it yields nothing; a read already blocked returns when the ping
// loop closes the connection on the same ctx.
func (c *Client) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}
		return c.next()
	}
}

// Run connects and delivers every message to fn until ctx ends, reconnecting
// after drops. It is the headless counterpart of Listen and ReadLoop.
func (c *Client) Run(ctx context.Context, fn func(tea.Msg)) error {
	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(ConnectedMsg{})
		for {
			msg := c.next()
			fn(msg)
			if _, ok := msg.(DisconnectedMsg); ok {
				break
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Seq returns the last sequence number seen from the relay.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close drops the current connection.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) header() http.Header {
	if c.token == "" {
		return nil
	}
	return http.Header{"X-Relay-Token": {c.token}}
}

func (c *Client) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		cc, resp, err := c.dialer.DialContext(ctx, c.url, c.header())
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(ErrUnauthorized)
			}
			return err
		}
		conn = cc
		return nil
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", d).Msg("relay dial failed")
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.pingCancel != nil {
		c.pingCancel()
	}
	pingCtx, cancel := context.WithCancel(ctx)
	c.conn = conn
	c.seq = 0
	c.pingCancel = cancel
	c.mu.Unlock()

	go c.pingLoop(pingCtx, conn)
	c.log.Info().Str("url", c.url).Msg("relay connected")
	return nil
}

func (c *Client) next() tea.Msg {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return DisconnectedMsg{Err: errNotConnected}
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			return DisconnectedMsg{Err: err}
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		c.seq = msg.Seq
		c.mu.Unlock()

		if m := dispatch(msg); m != nil {
			return m
		}
	}
}

// pingLoop keeps the connection alive and closes it when ctx ends so that a
// blocked read returns.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func dispatch(msg wsMessage) tea.Msg {
	switch msg.Type {
	case MsgSnapshot:
		var p struct {
			Events []Event `json:"events"`
		}
		if json.Unmarshal(msg.Payload, &p) == nil {
			return SnapshotMsg{Events: p.Events}
		}
	case MsgEvent:
		var ev Event
		if json.Unmarshal(msg.Payload, &ev) != nil {
			return nil
		}
		out := EventMsg{Event: ev}
		if w, ok := ev.Webhook(); ok {
			out.Webhook = &w
			if st, ok := StatusEvent(w); ok {
				out.Status = &st
			}
		}
		return out
	case MsgCleared:
		var p struct {
			Count int `json:"count"`
		}
		if json.Unmarshal(msg.Payload, &p) == nil {
			return ClearedMsg{Count: p.Count}
		}
	}
	return nil
}
