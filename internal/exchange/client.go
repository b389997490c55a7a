package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

// ServerError reports a 5xx status.
func (e *StatusError) ServerError() bool {
	return e.StatusCode >= 500
}

// session is the HTTP state one source keeps for a whole backfill run.
type session struct {
	source     string
	httpClient *http.Client
	headers    http.Header
	logger     *log.Logger

	retries    int
	retryPause time.Duration
}

// Option configures a fetcher.
type Option func(*session)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *session) {
		s.httpClient.Timeout = d
	}
}

// WithRetries sets the attempt budget and the fixed pause between attempts.
func WithRetries(attempts int, pause time.Duration) Option {
	return func(s *session) {
		s.retries = attempts
		s.retryPause = pause
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *session) {
		s.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *session) {
		s.httpClient = hc
	}
}

func newSession(source string, timeout time.Duration, headers http.Header, opts ...Option) *session {
	jar, _ := cookiejar.New(nil)
	s := &session{
		source: source,
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		headers:    headers,
		logger:     logging.Nop(),
		retries:    3,
		retryPause: 800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retries < 1 {
		s.retries = 1
	}
	return s
}

// getJSON performs one GET and decodes the body into out.
func (s *session) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	fullURL := endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range s.headers {
		req.Header[k] = v
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// attempt is one try at a date; a non-nil error asks for another try.
type attempt func(ctx context.Context) (Result, error)

// withRetry runs fn until it returns without error or the attempt budget is
// spent. The pause between attempts is fixed.
func (s *session) withRetry(ctx context.Context, label string, fn attempt) Result {
	var lastErr error
	for n := 1; n <= s.retries; n++ {
		res, err := fn(ctx)
		if err == nil {
			return res
		}
		lastErr = err

		s.logger.Warn().
			Str("source", s.source).
			Str("date", label).
			Int("attempt", n).
			Int("retries", s.retries).
			Bool("server_error", isServerError(err)).
			Err(err).
			Msg("fetch attempt failed")

		if n < s.retries {
			if err := Sleep(ctx, s.retryPause); err != nil {
				return Exhausted(err)
			}
		}
	}
	return Exhausted(lastErr)
}

// Close releases pooled connections.
func (s *session) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func isServerError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ServerError()
}

// Sleep pauses for d or until ctx ends, whichever comes first. It returns
// ctx.Err() when the context ended.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
