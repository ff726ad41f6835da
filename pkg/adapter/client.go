package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/nexus/pkg/auth"
	"github.com/harrisonrobin/nexus/pkg/model"
)

const maxBodyBytes = 32 << 20

// ClientOptions configures the shared HTTP client.
type ClientOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Transport   http.RoundTripper
}

// Client is a retrying HTTP client shared by the REST adapters.
type Client struct {
	http        *http.Client
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger
}

func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		maxRetries:  opts.MaxRetries,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		logger:      logger,
	}
}

// Request describes one GET against a tool.
type Request struct {
	Tool model.ToolKind
	Op   string
	URL  string

	Query  url.Values
	Header http.Header

	// Principal and Secret are sent as a Basic Authorization header when either is set.
	Principal string
	Secret    string
}

// Get performs req and returns the response body. Transport failures, 429 and 5xx are
// retried with exponential backoff.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	target, err := req.target()
	if err != nil {
		return nil, NewProtocolError(req.Tool, req.Op, 0, err)
	}

	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			c.logger.Debug("retrying tool request",
				zap.String("tool", string(req.Tool)),
				zap.String("op", req.Op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Int("status", lastStatus))
			select {
			case <-ctx.Done():
				return nil, NewTransportError(req.Tool, req.Op, lastStatus, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, status, retry, err := c.once(ctx, req, target)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr, lastStatus = err, status
		if ctx.Err() != nil {
			break
		}
	}

	c.logger.Warn("tool request failed after retries",
		zap.String("tool", string(req.Tool)),
		zap.String("op", req.Op),
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr))
	return nil, NewTransportError(req.Tool, req.Op, lastStatus, lastErr)
}

// GetJSON performs req and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewProtocolError(req.Tool, req.Op, http.StatusOK, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) once(ctx context.Context, req Request, target string) (body []byte, status int, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, false, NewProtocolError(req.Tool, req.Op, 0, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	auth.SetBasic(httpReq, req.Principal, req.Secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Drop the URL from the error; it can carry credentials in its query.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, 0, true, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, false, NewAuthError(req.Tool, req.Op, resp.StatusCode, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resp.StatusCode, true, &statusError{status: resp.StatusCode, retryAfter: retryAfter(resp.Header)}
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, false, NewProtocolError(req.Tool, req.Op, resp.StatusCode, errors.New(snippet(body)))
	}
	if readErr != nil {
		return nil, resp.StatusCode, true, fmt.Errorf("read body: %w", readErr)
	}
	return body, resp.StatusCode, false, nil
}

// Transport returns an http.RoundTripper that retries bodiless requests on transport
// failures, 429 and 5xx with the client's backoff. It serves SDK clients that bring
// their own request plumbing. A nil base means http.DefaultTransport.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{client: c, base: base}
}

type retryTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody {
		return t.base.RoundTrip(req)
	}
	ctx := req.Context()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := t.client.backoff(attempt, lastErr)
			t.client.logger.Debug("retrying sdk request",
				zap.String("host", req.URL.Host),
				zap.String("path", req.URL.Path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		final := attempt >= t.client.maxRetries
		resp, err := t.base.RoundTrip(req)
		switch {
		case err != nil:
			if final || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if final {
				return resp, nil
			}
			lastErr = &statusError{status: resp.StatusCode, retryAfter: retryAfter(resp.Header)}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
		default:
			return resp, nil
		}
	}
}

func (req Request) target() (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server responded %d %s", e.status, http.StatusText(e.status))
}

// backoff doubles the base delay per attempt, caps it, and applies ±25% jitter.
// A Retry-After header wins when it is within the cap.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var se *statusError
	if errors.As(lastErr, &se) && se.retryAfter > 0 && se.retryAfter <= c.maxBackoff {
		return se.retryAfter
	}

	shift := attempt - 1
	if shift > 10 {
		shift = 10
	}
	delay := c.baseBackoff * time.Duration(1<<shift)
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	if half := int64(delay / 2); half > 0 {
		delay = delay - delay/4 + time.Duration(rand.Int64N(half))
	}
	return delay
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

// JoinURL joins a base URL and a path with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
