package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("backend unavailable")

// Options tunes a Client. Zero values pick the defaults noted per field.
type Options struct {
	// Timeout bounds one HTTP round trip (default 30s).
	Timeout time.Duration

	// MaxRetries is how many times a GET is retried (default 0).
	MaxRetries int

	// Backoff is the first retry delay, doubled per attempt (default 500ms).
	Backoff time.Duration

	// HTTPClient replaces the default client, e.g. in tests.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client is a thin HTTP client for the marketplace REST API. It handles
// bearer authentication, JSON and form bodies, retries of idempotent GETs
// with exponential backoff, and a circuit breaker that fails fast while the
// backend is down.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *retrier.Retrier
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     *zap.Logger
}

// request describes one call. body is kept as bytes so a retry can resend it.
type request struct {
	method      string
	path        string
	token       string
	body        []byte
	contentType string
}

// response is a completed 2xx exchange.
type response struct {
	status int
	body   []byte
}

// NewClient creates a client for the backend rooted at baseURL
// (e.g., http://127.0.0.1:8000).
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := logging.OrNop(opts.Logger)

	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "bhconnect-api",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Client errors mean the backend answered; only transport
			// failures and 5xx count against it.
			return err == nil || !isBackendFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retry: retrier.New(
			retrier.ExponentialBackoff(opts.MaxRetries, opts.Backoff),
			retryClassifier{},
		),
		breaker: breaker,
		logger:  logger,
	}
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path, token string, result any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, token: token}, result)
}

// sendJSON performs a request with a JSON body (or none when body is nil).
func (c *Client) sendJSON(
	ctx context.Context,
	method string,
	path string,
	token string,
	body any,
	result any,
) error {
	r := request{method: method, path: path, token: token}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		r.body = data
		r.contentType = "application/json"
	}
	return c.do(ctx, r, result)
}

// do runs the request through the breaker, retrying GETs, and decodes the
// response into result when it is non-nil.
func (c *Client) do(ctx context.Context, r request, result any) error {
	var resp *response
	attempt := func(ctx context.Context) error {
		out, err := c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, r)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s %s: %w", r.method, r.path, ErrUnavailable)
		}
		if err != nil {
			return err
		}
		resp = out
		return nil
	}

	var err error
	if r.method == http.MethodGet {
		err = c.retry.RunCtx(ctx, attempt)
	} else {
		err = attempt(ctx)
	}
	if err != nil {
		c.logger.Debug("api request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return err
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.status == http.StatusNoContent || len(resp.body) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.body, result); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w",
			r.method, r.path, err,
		)
	}
	return nil
}

// roundTrip performs a single HTTP exchange. Non-2xx statuses come back
// as *Error.
func (c *Client) roundTrip(ctx context.Context, r request) (*response, error) {
	var bodyReader io.Reader
	if r.body != nil {
		bodyReader = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w", r.method, r.path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &Error{
			Status: res.StatusCode,
			Method: r.method,
			Path:   r.path,
			Detail: parseDetail(body),
		}
	}

	return &response{status: res.StatusCode, body: body}, nil
}

// isBackendFault reports whether err says the backend is unhealthy rather
// than that the request was refused.
func isBackendFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

// retryClassifier retries transport failures, 429 and 5xx.
type retryClassifier struct{}

func (retryClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrUnavailable) {
		return retrier.Fail
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500 {
			return retrier.Retry
		}
		return retrier.Fail
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Retry
	}
	// Malformed requests and body read failures will not improve on retry.
	return retrier.Fail
}
