package relay

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one received webhook as recorded by the relay.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      json.RawMessage   `json:"body"`
	IP        string            `json:"ip"`
	Simulated bool              `json:"simulated,omitempty"`
}

func (e *Event) clone() *Event {
	c := *e
	if e.Headers != nil {
		c.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			c.Headers[k] = v
		}
	}
	if e.Body != nil {
		c.Body = append(json.RawMessage(nil), e.Body...)
	}
	return &c
}

func newEventID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Store keeps the newest max events, newest first.
type Store struct {
	mu       sync.RWMutex
	events   []*Event
	max      int
	received uint64
}

func NewStore(max int) *Store {
	if max <= 0 {
		max = 100
	}
	return &Store{max: max}
}

// Add assigns an ID when the event has none and records a copy.
func (s *Store) Add(ev *Event) *Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = newEventID(ev.Timestamp)
	}
	stored := ev.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]*Event{stored}, s.events...)
	if len(s.events) > s.max {
		s.events = s.events[:s.max]
	}
	s.received++
	return stored.clone()
}

// List returns up to limit events, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]*Event, 0, n)
	for _, ev := range s.events[:n] {
		result = append(result, ev.clone())
	}
	return result
}

// Clear drops every stored event and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	s.events = nil
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Received counts every event ever added, including ones since evicted.
func (s *Store) Received() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}
