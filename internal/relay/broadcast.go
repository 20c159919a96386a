package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer    = 64
	writeTimeout  = 10 * time.Second
	snapshotLimit = 20
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans recorded events out to every /ws client. New clients get
// a snapshot of the most recent events first.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	store   *Store
	log     zerolog.Logger

	seqMu sync.Mutex
	seq   uint64
}

func NewBroadcaster(store *Store, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
		store:   store,
		log:     logger,
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()
	ClientsConnected.Set(float64(n))

	data, err := b.encode(MsgSnapshot, SnapshotPayload{Events: b.store.List(snapshotLimit)})
	if err != nil {
		return c
	}
	select {
	case c.send <- data:
	default:
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	n := len(b.clients)
	b.mu.Unlock()
	ClientsConnected.Set(float64(n))
}

// PublishEvent sends ev to every client.
func (b *Broadcaster) PublishEvent(ev *Event) {
	b.broadcast(MsgEvent, ev)
}

// PublishCleared tells clients the event list was emptied.
func (b *Broadcaster) PublishCleared(count int) {
	b.broadcast(MsgCleared, ClearedPayload{Count: count})
}

func (b *Broadcaster) encode(t MessageType, payload interface{}) ([]byte, error) {
	b.seqMu.Lock()
	b.seq++
	msg := WSMessage{Type: t, Seq: b.seq, Payload: payload}
	b.seqMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error().Err(err).Str("type", string(t)).Msg("broadcast marshal failed")
	}
	return data, err
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	data, err := b.encode(t, payload)
	if err != nil {
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			b.log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
	ClientsConnected.Set(0)
}
