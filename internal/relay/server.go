package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	maxBodyBytes      = 10 << 20
	defaultEventLimit = 50
)

type Options struct {
	Port           int
	Token          string
	AllowedOrigins []string
	SimulateDelay  time.Duration
	Gatherer       prometheus.Gatherer // nil uses the default registry
	Logger         zerolog.Logger
}

// Server is the local webhook relay: it records whatever the WhatsApp API
// posts to /webhook and pushes it to /ws subscribers.
type Server struct {
	store          *Store
	broadcaster    *Broadcaster
	port           int
	authToken      string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	simulateDelay  time.Duration
	gatherer       prometheus.Gatherer
	log            zerolog.Logger
	started        time.Time
	proc           *process.Process
}

func NewServer(store *Store, broadcaster *Broadcaster, opts Options) *Server {
	s := &Server{
		store:          store,
		broadcaster:    broadcaster,
		port:           opts.Port,
		authToken:      opts.Token,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		simulateDelay:  opts.SimulateDelay,
		gatherer:       opts.Gatherer,
		log:            opts.Logger,
		started:        time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		s.log.Warn().Err(err).Msg("process stats unavailable")
	}
	return s
}

func (s *Server) SetupRoutes(r *mux.Router) {
	r.Use(s.logging, s.metrics, cors)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/events", s.requireToken(s.handleEvents)).Methods(http.MethodGet)
	r.HandleFunc("/events", s.requireToken(s.handleClear)).Methods(http.MethodDelete)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/simulate/{eventType}", s.requireToken(s.handleSimulate)).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.requireToken(s.handleWS))
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// Ingest records ev and pushes it to subscribers.
func (s *Server) Ingest(ev *Event) *Event {
	stored := s.store.Add(ev)
	WebhooksReceived.WithLabelValues(eventName(stored.Body)).Inc()
	s.broadcaster.PublishEvent(stored)
	s.log.Info().
		Str("id", stored.ID).
		Str("event", eventName(stored.Body)).
		Str("ip", stored.IP).
		Bool("simulated", stored.Simulated).
		Msg("webhook received")
	return stored
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	ev := s.Ingest(&Event{
		Method:  r.Method,
		Headers: flattenHeaders(r.Header),
		Body:    body,
		IP:      remoteIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "webhook received",
		"eventId":   ev.ID,
		"timestamp": ev.Timestamp,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultEventLimit
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"total":   s.store.Len(),
		"events":  s.store.List(limit),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n := s.store.Clear()
	s.broadcaster.PublishCleared(n)
	s.log.Info().Int("count", n).Msg("events cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   fmt.Sprintf("%d events removed", n),
		"count":     n,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	status := map[string]interface{}{
		"success":        true,
		"server":         "wa-relay",
		"status":         "online",
		"port":           s.port,
		"eventsReceived": s.store.Len(),
		"totalReceived":  s.store.Received(),
		"clients":        s.broadcaster.ClientCount(),
		"uptime":         time.Since(s.started).Seconds(),
		"timestamp":      time.Now().UTC(),
		"endpoints": map[string]string{
			"webhook": base + "/webhook",
			"events":  base + "/events",
			"status":  base + "/status",
			"ws":      strings.Replace(base, "http", "ws", 1) + "/ws",
		},
	}
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			status["memory"] = map[string]uint64{"rss": mem.RSS, "vms": mem.VMS}
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	eventType := mux.Vars(r)["eventType"]

	var req SimulateRequest
	if r.Body != nil {
		// An empty or malformed body just means the defaults.
		_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	}

	hook, ok := Simulated(eventType, req, time.Now())
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":        false,
			"error":          "unsupported event type",
			"supportedTypes": SimulatedTypes,
		})
		return
	}
	body, err := json.Marshal(hook)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}

	Simulations.WithLabelValues(eventType).Inc()
	time.AfterFunc(s.simulateDelay, func() {
		s.Ingest(&Event{
			Method:    http.MethodPost,
			Headers:   map[string]string{"content-type": "application/json", "x-simulated": "true"},
			Body:      body,
			IP:        "127.0.0.1",
			Simulated: true,
		})
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("event %s will be simulated", eventType),
		"event":   hook,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "wa-relay is running",
		"status":  "online",
		"port":    s.port,
		"endpoints": map[string]string{
			"webhook":  "POST " + base + "/webhook",
			"events":   "GET " + base + "/events",
			"clear":    "DELETE " + base + "/events",
			"status":   "GET " + base + "/status",
			"simulate": "POST " + base + "/simulate/{eventType}",
			"ws":       "GET " + strings.Replace(base, "http", "ws", 1) + "/ws",
			"metrics":  "GET " + base + "/metrics",
		},
		"usage": map[string]string{
			"webhook":  "Point the tenant's webhook URL here",
			"events":   "List received events, newest first",
			"status":   "Relay status",
			"simulate": "Simulate qr_code, pairing_code or connection events",
			"ws":       "Live event feed",
		},
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	s.log.Info().Str("remote", r.RemoteAddr).Msg("ws client connected")
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info().Str("remote", r.RemoteAddr).Msg("ws client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	if r.Header.Get("X-Relay-Token") == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		HTTPRequests.WithLabelValues(routeLabel(r), strconv.Itoa(sw.status)).Inc()
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Relay-Token")
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.URL.Path
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return r.URL.Path
	}
	return tpl
}

// readBody returns the request body as JSON. Form posts are converted to a
// JSON object; an empty body becomes {}.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if json.Valid(data) {
		return json.RawMessage(data), nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		vals, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, err
		}
		flat := make(map[string]string, len(vals))
		for k := range vals {
			flat[k] = vals.Get(k)
		}
		return json.Marshal(flat)
	}
	return nil, errors.New("body is not valid JSON")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func eventName(body json.RawMessage) string {
	var hook struct {
		Event string `json:"event"`
	}
	if json.Unmarshal(body, &hook) != nil || hook.Event == "" {
		return "unknown"
	}
	return hook.Event
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves h on host:port until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler, logger zerolog.Logger) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
