package spanz

import (
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Defaults applied by New.
const (
	DefaultMaxPayloadLength    = 4 << 20
	DefaultMaxLogPayloadLength = 32 << 10
	DefaultFlushInterval       = 30 * time.Second
	DefaultFlushTimeout        = 30 * time.Second
)

// config holds the settings a Tracer is built from.
type config struct {
	clock               clockz.Clock
	transport           Transport
	logger              *zap.Logger
	metrics             *Metrics
	reporterTags        map[string]string
	accessToken         string
	componentName       string
	maxSpanRecords      int
	maxPayloadLength    int
	maxLogPayloadLength int
	flushInterval       time.Duration
	flushTimeout        time.Duration
}

func defaultConfig() config {
	return config{
		clock:               clockz.RealClock,
		logger:              zap.NewNop(),
		maxSpanRecords:      DefaultMaxSpanRecords,
		maxPayloadLength:    DefaultMaxPayloadLength,
		maxLogPayloadLength: DefaultMaxLogPayloadLength,
		flushInterval:       DefaultFlushInterval,
		flushTimeout:        DefaultFlushTimeout,
	}
}

// Option configures a Tracer.
type Option func(*config)

// WithAccessToken sets the project access token sent with every report.
func WithAccessToken(token string) Option {
	return func(c *config) { c.accessToken = token }
}

// WithComponentName sets the name of the reporting component.
func WithComponentName(name string) Option {
	return func(c *config) { c.componentName = name }
}

// WithReporterTag adds a tag describing this process to every report.
func WithReporterTag(key, value string) Option {
	return func(c *config) {
		if c.reporterTags == nil {
			c.reporterTags = make(map[string]string)
		}
		c.reporterTags[key] = value
	}
}

// WithMaxSpanRecords sets the buffer capacity. Values below one are ignored.
func WithMaxSpanRecords(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSpanRecords = n
		}
	}
}

// WithMaxPayloadLength sets the largest encoded report, in bytes, that will
// be sent. Values below one are ignored.
func WithMaxPayloadLength(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPayloadLength = n
		}
	}
}

// WithMaxLogPayloadLength caps the rendered size of a single log payload.
// Zero disables the cap.
func WithMaxLogPayloadLength(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxLogPayloadLength = n
		}
	}
}

// WithFlushInterval sets the automatic flush period. Zero disables automatic
// flushing; Flush can still be called.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.flushInterval = d
		}
	}
}

// WithFlushTimeout bounds each transport call made by Flush.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.flushTimeout = d
		}
	}
}

// WithTransport sets where reports are sent.
func WithTransport(t Transport) Option {
	return func(c *config) { c.transport = t }
}

// WithClock injects the clock used for span timestamps, clock-skew samples
// and the flush timer. Enables deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records tracer activity in m.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// StartSpanConfig holds the settings for a new span.
type StartSpanConfig struct {
	Parent    *SpanContext
	Tags      map[string]string
	StartTime time.Time
}

// StartSpanOption configures a span at creation.
type StartSpanOption func(*StartSpanConfig)

// ChildOf makes the new span a child of parent: it joins parent's trace and
// inherits its baggage.
func ChildOf(parent SpanContext) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.Parent = &parent }
}

// Tags sets initial tags on the new span.
func Tags(tags map[string]string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			cfg.Tags[k] = v
		}
	}
}

// Tag sets one initial tag on the new span.
func Tag(key, value string) StartSpanOption {
	return func(cfg *StartSpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]string, 1)
		}
		cfg.Tags[key] = value
	}
}

// StartTime sets an explicit start time for the new span.
func StartTime(t time.Time) StartSpanOption {
	return func(cfg *StartSpanConfig) { cfg.StartTime = t }
}
