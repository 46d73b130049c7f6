package services

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
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	maxErrorBody      = 512
)

// errRetry marks a response the platform asked us to retry (rate limited or quota exceeded).
var errRetry = errors.New("retry requested")

// Option configures an adapter.
type Option func(*apiClient)

// WithHTTPClient sets the [http.Client] used for API and token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *apiClient) { a.http = c }
}

// WithBaseURL points the adapter at a different API root, used by tests.
func WithBaseURL(u string) Option {
	return func(a *apiClient) { a.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTokenURL overrides the OAuth token endpoint, used by tests.
func WithTokenURL(u string) Option {
	return func(a *apiClient) { a.tokenURL = u }
}

// WithRateLimit sets the sustained requests per second and burst of the adapter's limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *apiClient) { a.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetry sets how many times rate-limited requests are retried and the base backoff between attempts.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(a *apiClient) {
		a.maxRetries = maxRetries
		a.backoff = backoff
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *log.Logger) Option {
	return func(a *apiClient) { a.logger = l }
}

// apiClient is the HTTP plumbing shared by every adapter: rate limiting, retries and status mapping.
type apiClient struct {
	platform   models.Platform
	baseURL    string
	tokenURL   string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger

	// authorize attaches the credential to an outgoing request.
	authorize func(req *http.Request, cred *models.Credential)
	// inspect examines a 2xx body for platform errors reported in-band.
	inspect func(body []byte) error
}

func newAPIClient(platform models.Platform, baseURL, tokenURL string, rps float64, opts []Option) *apiClient {
	c := &apiClient{
		platform:   platform,
		baseURL:    baseURL,
		tokenURL:   tokenURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     log.Default(),
		authorize:  bearer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func bearer(req *http.Request, cred *models.Credential) {
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
}

// request describes one API call.
type request struct {
	method   string
	endpoint string
	query    url.Values
	body     any
}

// do performs an authenticated request and decodes the JSON response into result.
//
// 429 responses are retried for every method. 5xx responses are retried only for GET since a failed POST may
// already have been applied.
func (c *apiClient) do(ctx context.Context, cred *models.Credential, r request, result any) error {
	if cred == nil || cred.AccessToken == "" {
		return fmt.Errorf("%w: no access token for %s", shared.ErrNotAuthenticated, c.platform)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retryDelay(attempt, lastErr)); err != nil {
				return fmt.Errorf("%w: %s: %v", shared.ErrTransport, c.platform, err)
			}
			c.logger.Debug("retrying request", "platform", c.platform, "endpoint", r.endpoint, "attempt", attempt)
		}

		err := c.once(ctx, cred, r, result)
		if err == nil {
			return nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
		if re.status >= 500 && r.method != http.MethodGet {
			return re.err
		}
	}

	var re *retryableError
	if errors.As(lastErr, &re) {
		return re.err
	}
	return lastErr
}

// retryableError carries the final error to surface if retries run out, plus the server's Retry-After hint.
type retryableError struct {
	status     int
	retryAfter time.Duration
	err        error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *apiClient) retryDelay(attempt int, lastErr error) time.Duration {
	var re *retryableError
	if errors.As(lastErr, &re) && re.retryAfter > 0 {
		return min(re.retryAfter, maxBackoff)
	}
	return min(c.backoff*time.Duration(1<<(attempt-1)), maxBackoff)
}

func (c *apiClient) once(ctx context.Context, cred *models.Credential, r request, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s rate limiter: %v", shared.ErrTransport, c.platform, err)
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return err
	}
	c.authorize(req, cred)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", shared.ErrTransport, c.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s failed to read response: %v", shared.ErrTransport, c.platform, err)
	}

	if err := c.checkStatus(resp, body); err != nil {
		return err
	}

	if c.inspect != nil {
		if err := c.inspect(body); err != nil {
			if errors.Is(err, errRetry) {
				return &retryableError{status: http.StatusTooManyRequests, err: fmt.Errorf("%w: %s: %v", shared.ErrTransport, c.platform, err)}
			}
			return err
		}
	}

	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: %s failed to decode response: %v", shared.ErrTransport, c.platform, err)
	}
	return nil
}

func (c *apiClient) newRequest(ctx context.Context, r request) (*http.Request, error) {
	apiURL := c.baseURL + r.endpoint
	if len(r.query) > 0 {
		apiURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// checkStatus maps non-2xx responses onto the error taxonomy.
func (c *apiClient) checkStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	detail := fmt.Sprintf("%s API error: status %d: %s", c.platform, code, snippet)

	switch {
	case code == http.StatusTooManyRequests:
		return &retryableError{status: code, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), err: fmt.Errorf("%w: %s", shared.ErrTransport, detail)}
	case code >= 500:
		return &retryableError{status: code, err: fmt.Errorf("%w: %s", shared.ErrTransport, detail)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, detail)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, detail)
	default:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, detail)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
