package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

var (
	ErrClosed        = errors.New("reconciler torn down")
	ErrNoSession     = errors.New("no active session")
	ErrSessionActive = errors.New("a session is already active")
	ErrPhoneRequired = errors.New("phone number required for pairing code")
	ErrPollCeiling   = errors.New("polling ceiling reached")
)

// PollError wraps a failed status check. It never changes the session status.
type PollError struct {
	SessionID string
	Err       error
}

func (e *PollError) Error() string { return fmt.Sprintf("poll %s: %v", e.SessionID, e.Err) }
func (e *PollError) Unwrap() error { return e.Err }

// Client is the slice of the API the reconciler talks to.
type Client interface {
	Connect(ctx context.Context, req api.ConnectRequest) (*api.ConnectResult, error)
	Connections(ctx context.Context) ([]api.Connection, error)
	ConnectionStatus(ctx context.Context, sessionID string) (*api.ConnectionStatus, error)
	ConnectionProfile(ctx context.Context, sessionID string) (*api.Profile, error)
	DeleteConnection(ctx context.Context, sessionID string) error
}

type Options struct {
	Interval time.Duration // 3s
	Ceiling  time.Duration // 5m
	Logger   zerolog.Logger
}

// loop is one owned poll goroutine. Its pointer identity is the liveness
// token: results are applied only while r.loops still maps to it.
type loop struct {
	cancel  context.CancelFunc
	started time.Time
}

type Reconciler struct {
	client   Client
	interval time.Duration
	ceiling  time.Duration
	log      zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sess     Session
	loops    map[string]*loop
	pending  bool // Connect in flight
	closed   bool
	onChange func(Session, Cause)
	onError  func(error)
}

func New(client Client, opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = 5 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		client:   client,
		interval: opts.Interval,
		ceiling:  opts.Ceiling,
		log:      opts.Logger.With().Str("component", "reconciler").Logger(),
		base:     base,
		cancel:   cancel,
		loops:    make(map[string]*loop),
	}
}

// OnChange registers fn to receive a snapshot after every mutation. fn runs
// outside the lock and may call back into the reconciler.
func (r *Reconciler) OnChange(fn func(Session, Cause)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// OnError registers fn for errors that have no caller to return to, such as
// failed poll ticks and the polling ceiling.
func (r *Reconciler) OnError(fn func(error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Session returns a copy of the current state.
func (r *Reconciler) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.clone()
}

// Discover adopts the tenant's first existing connection, if any. The API
// scopes the list by API key so the first entry is the tenant's session.
func (r *Reconciler) Discover(ctx context.Context) (Session, error) {
	conns, err := r.client.Connections(ctx)
	if err != nil {
		return r.Session(), err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Session{}, ErrClosed
	}
	if len(conns) == 0 {
		r.stopAllLocked()
		r.sess = Session{Rev: r.sess.Rev + 1}
	} else {
		cur := conns[0]
		if r.sess.SessionID != cur.SessionID {
			r.stopAllLocked()
			r.sess = Session{SessionID: cur.SessionID, Rev: r.sess.Rev}
		}
		switch {
		case cur.IsConnected:
			r.markConnectedLocked()
			if cur.ProfileData != nil && r.sess.Profile == nil {
				p := *cur.ProfileData
				r.sess.Profile = &p
			}
		case r.sess.Status != Connected:
			r.sess.Status = Connecting
			if _, ok := r.loops[cur.SessionID]; !ok {
				r.startLocked(cur.SessionID)
			}
		}
		r.sess.Rev++
	}
	snap := r.sess.clone()
	needProfile := snap.Status == Connected && snap.Profile == nil
	r.mu.Unlock()

	r.notify(snap, CauseDiscover)
	if needProfile {
		r.fetchProfile(ctx, snap.SessionID)
		return r.Session(), nil
	}
	return snap, nil
}

// Connect requests a new session and starts polling it. With usePairingCode
// the API answers with a pairing code for phoneNumber instead of a QR code.
func (r *Reconciler) Connect(ctx context.Context, usePairingCode bool, phoneNumber string) (Session, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if usePairingCode && phoneNumber == "" {
		return Session{}, ErrPhoneRequired
	}

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return Session{}, ErrClosed
	case r.pending || r.sess.Status != Disconnected:
		r.mu.Unlock()
		return r.Session(), ErrSessionActive
	}
	r.pending = true
	r.sess.QRCode, r.sess.PairingCode = "", ""
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()
	}()

	req := api.ConnectRequest{UsePairingCode: usePairingCode}
	if usePairingCode {
		req.PhoneNumber = phoneNumber
	}
	res, err := r.client.Connect(ctx, req)
	if err != nil {
		return r.Session(), err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Session{}, ErrClosed
	}
	r.stopAllLocked()
	r.sess = Session{
		SessionID:   res.SessionID,
		Status:      Connecting,
		QRCode:      res.QRCode,
		PairingCode: res.PairingCode,
		Rev:         r.sess.Rev + 1,
	}
	r.startLocked(res.SessionID)
	snap := r.sess.clone()
	r.mu.Unlock()

	r.log.Info().Str("session", res.SessionID).Bool("pairing", usePairingCode).Msg("connection requested")
	r.notify(snap, CauseConnect)
	return snap, nil
}

// Start polls sessionID: one check right away, then one per interval until
// connected, stopped or the ceiling passes. Starting a session that already
// has a loop is a no-op, as is starting a connected session.
func (r *Reconciler) Start(sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case sessionID != r.sess.SessionID:
		r.mu.Unlock()
		return ErrNoSession
	case r.sess.Status == Connected:
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.loops[sessionID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.startLocked(sessionID)
	r.sess.Rev++
	snap := r.sess.clone()
	r.mu.Unlock()

	r.notify(snap, CauseStart)
	return nil
}

// Stop cancels polling for sessionID. Safe to call when nothing is polling,
// and from inside OnChange or OnError.
func (r *Reconciler) Stop(sessionID string) {
	r.mu.Lock()
	if !r.stopLocked(sessionID) || sessionID != r.sess.SessionID {
		r.mu.Unlock()
		return
	}
	r.sess.Rev++
	snap := r.sess.clone()
	r.mu.Unlock()

	r.notify(snap, CauseStop)
}

// Apply merges a pushed event. Fields the event leaves empty keep their
// value. Events for a session other than the tracked one are dropped.
func (r *Reconciler) Apply(ctx context.Context, ev StatusEvent) {
	r.apply(ctx, ev, nil, CausePush)
}

// Disconnect ends the session on the API and resets to disconnected.
func (r *Reconciler) Disconnect(ctx context.Context) error {
	return r.end(ctx, CauseDisconnect)
}

// Delete removes the session on the API. The API uses the same call as
// Disconnect; observers see CauseDelete.
func (r *Reconciler) Delete(ctx context.Context) error {
	return r.end(ctx, CauseDelete)
}

// Teardown stops every loop and makes all later results no-ops. It does not
// wait for in-flight requests; use Wait for that.
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopAllLocked()
	r.mu.Unlock()
	r.cancel()
	r.log.Debug().Msg("torn down")
}

// Wait blocks until every poll goroutine has returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) end(ctx context.Context, cause Cause) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	id := r.sess.SessionID
	r.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}

	if err := r.client.DeleteConnection(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed || r.sess.SessionID != id {
		r.mu.Unlock()
		return nil
	}
	r.stopAllLocked()
	r.sess = Session{Rev: r.sess.Rev + 1}
	snap := r.sess.clone()
	r.mu.Unlock()

	r.log.Info().Str("session", id).Str("cause", string(cause)).Msg("session ended")
	r.notify(snap, cause)
	return nil
}

func (r *Reconciler) startLocked(id string) {
	ctx, cancel := context.WithTimeout(r.base, r.ceiling)
	l := &loop{cancel: cancel, started: time.Now()}
	r.loops[id] = l
	r.sess.Polling = true
	r.sess.PollStarted = l.started

	r.wg.Add(1)
	go r.run(ctx, id, l)
}

// stopLocked reports whether a loop was running for id.
func (r *Reconciler) stopLocked(id string) bool {
	l, ok := r.loops[id]
	if !ok {
		return false
	}
	l.cancel()
	delete(r.loops, id)
	if id == r.sess.SessionID {
		r.sess.Polling = false
		r.sess.PollStarted = time.Time{}
	}
	return true
}

func (r *Reconciler) stopAllLocked() {
	for id := range r.loops {
		r.stopLocked(id)
	}
}

func (r *Reconciler) markConnectedLocked() {
	r.sess.Status = Connected
	r.sess.QRCode = ""
	r.sess.PairingCode = ""
	r.stopLocked(r.sess.SessionID)
}

func (r *Reconciler) run(ctx context.Context, id string, l *loop) {
	defer r.wg.Done()

	r.check(ctx, id, l)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.finish(ctx, id, l)
			return
		case <-ticker.C:
			r.check(ctx, id, l)
		}
	}
}

// check runs one status request and waits for it, so a session never has
// two requests in flight.
func (r *Reconciler) check(ctx context.Context, id string, l *loop) {
	st, err := r.client.ConnectionStatus(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.mu.Lock()
		live := !r.closed && r.loops[id] == l
		r.mu.Unlock()
		if live {
			r.log.Warn().Err(err).Str("session", id).Msg("status check failed")
			r.report(&PollError{SessionID: id, Err: err})
		}
		return
	}
	r.apply(r.base, FromStatus(id, st), l, CausePoll)
}

// finish handles a loop whose context ended. An explicit stop already
// removed the loop; anything else is the ceiling.
func (r *Reconciler) finish(ctx context.Context, id string, l *loop) {
	r.mu.Lock()
	if r.closed || r.loops[id] != l {
		r.mu.Unlock()
		return
	}
	r.stopLocked(id)
	r.sess.Rev++
	snap := r.sess.clone()
	r.mu.Unlock()

	r.log.Warn().Str("session", id).Dur("ceiling", r.ceiling).Str("status", snap.Status.String()).Msg("polling stopped at ceiling")
	r.notify(snap, CauseCeiling)
	r.report(&PollError{SessionID: id, Err: ErrPollCeiling})
}

func (r *Reconciler) apply(ctx context.Context, ev StatusEvent, l *loop, cause Cause) {
	r.mu.Lock()
	if !r.liveLocked(ev.SessionID, l) {
		r.mu.Unlock()
		return
	}
	before := r.sess.Status
	changed := r.mergeLocked(ev)
	if !changed {
		r.mu.Unlock()
		return
	}
	r.sess.Rev++
	snap := r.sess.clone()
	needProfile := snap.Status == Connected && snap.Profile == nil
	r.mu.Unlock()

	if snap.Status != before {
		r.log.Info().Str("session", snap.SessionID).Str("from", before.String()).Str("to", snap.Status.String()).Str("cause", string(cause)).Msg("connection status changed")
	}
	r.notify(snap, cause)
	if needProfile {
		r.fetchProfile(ctx, snap.SessionID)
	}
}

func (r *Reconciler) liveLocked(sessionID string, l *loop) bool {
	if r.closed || r.sess.SessionID == "" {
		return false
	}
	if sessionID != "" && sessionID != r.sess.SessionID {
		return false
	}
	return l == nil || r.loops[r.sess.SessionID] == l
}

// mergeLocked applies ev field by field. Connected is sticky: once reached,
// only a profile can still change, and codes are never brought back.
func (r *Reconciler) mergeLocked(ev StatusEvent) bool {
	s := &r.sess
	changed := false

	if s.Status != Connected {
		if ev.IsConnected != nil && *ev.IsConnected {
			r.markConnectedLocked()
			changed = true
		} else {
			if ev.QRCode != "" && ev.QRCode != s.QRCode {
				s.QRCode = ev.QRCode
				changed = true
			}
			if ev.PairingCode != "" && ev.PairingCode != s.PairingCode {
				s.PairingCode = ev.PairingCode
				changed = true
			}
		}
	}

	if s.Status == Connected && ev.Profile != nil && (s.Profile == nil || *s.Profile != *ev.Profile) {
		p := *ev.Profile
		s.Profile = &p
		changed = true
	}
	return changed
}

func (r *Reconciler) fetchProfile(ctx context.Context, id string) {
	p, err := r.client.ConnectionProfile(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Str("session", id).Msg("profile fetch failed")
		r.report(fmt.Errorf("fetch profile %s: %w", id, err))
		return
	}
	if p == nil {
		return
	}
	r.apply(ctx, StatusEvent{SessionID: id, Profile: p}, nil, CauseProfile)
}

func (r *Reconciler) notify(s Session, cause Cause) {
	r.mu.Lock()
	fn, closed := r.onChange, r.closed
	r.mu.Unlock()
	if fn != nil && !closed {
		fn(s, cause)
	}
}

func (r *Reconciler) report(err error) {
	r.mu.Lock()
	fn, closed := r.onError, r.closed
	r.mu.Unlock()
	if fn != nil && !closed {
		fn(err)
	}
}
