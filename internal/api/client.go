package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// Options tunes the client. Zero values pick the defaults noted per field.
type Options struct {
	Timeout         time.Duration // 30s
	RateLimit       float64       // requests/second, 0 disables limiting
	Burst           int           // 1 when RateLimit > 0
	BreakerFailures uint32        // consecutive failures to open, 5
	BreakerCooldown time.Duration // open -> half-open, 30s
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// Client makes REST calls to the WhatsApp API on behalf of one tenant.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger

	mu     sync.RWMutex
	apiKey string
}

// New creates a client targeting baseURL (e.g. "http://localhost:3000").
func New(baseURL, apiKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		apiKey:  apiKey,
		log:     opts.Logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "whatsapp-api",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAPIKey switches the tenant whose key is sent as X-API-Key. An empty key
// sends no header.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

// APIKey returns the key currently attached to requests.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status int
	body   []byte
}

// call describes one request. endpoint is the route template used as the
// metrics label so that IDs do not explode label cardinality.
type call struct {
	method      string
	endpoint    string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func (c *Client) op(cl call) string {
	return cl.method + " " + cl.endpoint
}

// send runs the request through the limiter and breaker. Only transport
// failures and 5xx responses count against the breaker.
func (c *Client) send(ctx context.Context, cl call) (*rawResponse, error) {
	op := c.op(cl)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, cl.method, u, cl.body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if cl.contentType != "" {
			req.Header.Set("Content-Type", cl.contentType)
		}
		req.Header.Set("X-Request-Id", uuid.NewString())
		if key := c.APIKey(); key != "" {
			req.Header.Set("X-API-Key", key)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		raw := &rawResponse{status: resp.StatusCode, body: body}
		if resp.StatusCode >= 500 {
			return raw, fmt.Errorf("server error %d", resp.StatusCode)
		}
		return raw, nil
	})
	RequestLatency.WithLabelValues(cl.endpoint).Observe(time.Since(start).Seconds())

	raw, _ := res.(*rawResponse)
	if raw == nil {
		Requests.WithLabelValues(cl.endpoint, "error").Inc()
		c.log.Debug().Err(err).Str("op", op).Msg("request failed")
		return nil, &TransportError{Op: op, Err: err}
	}
	Requests.WithLabelValues(cl.endpoint, strconv.Itoa(raw.status)).Inc()

	if raw.status < 200 || raw.status >= 300 {
		return nil, &StatusError{Op: op, Code: raw.status, Message: errorMessage(raw.body)}
	}
	return raw, nil
}

// do sends cl and unwraps the {success, data} envelope into out. out may be
// nil when the caller only needs the acknowledgement.
func (c *Client) do(ctx context.Context, cl call, out interface{}) error {
	raw, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	op := c.op(cl)

	var env envelope
	if err := json.Unmarshal(raw.body, &env); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &StatusError{Op: op, Code: raw.status, Message: msg}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return &DecodeError{Op: op, Err: errors.New("missing data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

// doBare sends cl and decodes the body directly into out, for the endpoints
// that answer without an envelope.
func (c *Client) doBare(ctx context.Context, cl call, out interface{}) error {
	raw, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return &DecodeError{Op: c.op(cl), Err: err}
	}
	return nil
}

func jsonCall(method, endpoint, path string, body interface{}) (call, error) {
	cl := call{method: method, endpoint: endpoint, path: path}
	if body == nil {
		return cl, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return cl, err
	}
	cl.body = bytes.NewReader(data)
	cl.contentType = "application/json"
	return cl, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out interface{}) error {
	return c.do(ctx, call{method: http.MethodGet, endpoint: endpoint, path: path, query: query}, out)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body, out interface{}) error {
	cl, err := jsonCall(http.MethodPost, endpoint, path, body)
	if err != nil {
		return err
	}
	return c.do(ctx, cl, out)
}

func (c *Client) put(ctx context.Context, endpoint, path string, body, out interface{}) error {
	cl, err := jsonCall(http.MethodPut, endpoint, path, body)
	if err != nil {
		return err
	}
	return c.do(ctx, cl, out)
}

func (c *Client) delete(ctx context.Context, endpoint, path string) error {
	return c.do(ctx, call{method: http.MethodDelete, endpoint: endpoint, path: path}, nil)
}

// errorMessage pulls "error" or "message" out of a JSON error body, falling
// back to the trimmed text.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func esc(s string) string { return url.PathEscape(s) }
