// Package httpreport sends encoded span reports to a collector over HTTP.
//
// Reports are POSTed as application/octet-stream. Requests go through a
// go-retryablehttp client; by default it makes a single attempt so a failed
// report surfaces to the tracer, which counts its spans as dropped. Callers
// that prefer redelivery can opt in with WithRetries.
package httpreport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	kgzip "github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	// AccessTokenHeader carries the project access token.
	AccessTokenHeader = "Lightstep-Access-Token"
	// ContentType is the media type of report bodies.
	ContentType = "application/octet-stream"
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// StatusError is returned when the collector answers with a status of 400 or
// above.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("httpreport: collector returned %d", e.StatusCode)
	}
	return fmt.Sprintf("httpreport: collector returned %d: %s", e.StatusCode, e.Body)
}

// Transport posts reports to a collector URL. Safe for concurrent use.
type Transport struct {
	client      *retryablehttp.Client
	logger      *zap.Logger
	url         string
	accessToken string
	gzipLevel   int
	gzip        bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithAccessToken sends token in the access token header.
func WithAccessToken(token string) Option {
	return func(t *Transport) { t.accessToken = token }
}

// WithGzip compresses request bodies.
func WithGzip(enabled bool) Option {
	return func(t *Transport) { t.gzip = enabled }
}

// WithGzipLevel sets the compression level used with WithGzip.
func WithGzipLevel(level int) Option {
	return func(t *Transport) { t.gzipLevel = level }
}

// WithRetries lets the client retry connection errors and 5xx/429 responses
// up to n more times.
func WithRetries(n int) Option {
	return func(t *Transport) {
		if n >= 0 {
			t.client.RetryMax = n
		}
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(t *Transport) {
		t.client.RetryWaitMin = minWait
		t.client.RetryWaitMax = maxWait
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.client.HTTPClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client.HTTPClient = c
		}
	}
}

// WithLogger routes the retry client's diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a transport posting to url.
func New(url string, opts ...Option) *Transport {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = DefaultTimeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	t := &Transport{
		client:    client,
		logger:    zap.NewNop(),
		url:       url,
		gzipLevel: kgzip.BestSpeed,
	}
	for _, opt := range opts {
		opt(t)
	}
	client.Logger = leveledLogger{t.logger.Sugar()}
	return t
}

// Send posts payload and returns the response body.
func (t *Transport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	body := payload
	if t.gzip {
		compressed, err := t.compress(payload)
		if err != nil {
			return nil, fmt.Errorf("httpreport: compress report: %w", err)
		}
		body = compressed
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return nil, fmt.Errorf("httpreport: build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if t.accessToken != "" {
		req.Header.Set(AccessTokenHeader, t.accessToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpreport: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return data, nil
}

func (t *Transport) compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := kgzip.NewWriterLevel(&buf, t.gzipLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.client.HTTPClient.CloseIdleConnections()
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
