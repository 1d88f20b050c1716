package spanz

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Tracer creates spans, propagates their contexts and reports finished spans
// to a collector. Finished spans accumulate in a bounded buffer that is
// flushed periodically or on demand; at most one flush is in flight at a time.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	cfg        config
	clock      clockz.Clock
	logger     *zap.Logger
	buffer     *Buffer
	clockState *ClockState
	idPool     *IDPool
	metrics    *Metrics
	errLimiter *rate.Limiter

	// inFlight is non-nil while a flush owns the report path and is closed
	// when that flush completes.
	inFlight chan struct{}
	flightMu sync.Mutex
	// reportedDropped is the dropped count already sent to the collector.
	// Only the flush owning inFlight touches it.
	reportedDropped uint64

	stopCh    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	reporterID ID
	disabled   atomic.Bool
	closed     atomic.Bool
}

// New creates a tracer. Without WithTransport spans are buffered but flushes
// report ErrNoTransport.
func New(opts ...Option) *Tracer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Tracer{
		cfg:        cfg,
		clock:      cfg.clock,
		logger:     cfg.logger.With(zap.String("component", cfg.componentName)),
		buffer:     NewBuffer(cfg.maxSpanRecords),
		clockState: NewClockState(),
		// Pool size based on number of CPUs for optimal contention balance.
		idPool:     NewIDPool(runtime.NumCPU()*100, GenerateID),
		metrics:    cfg.metrics,
		errLimiter: rate.NewLimiter(rate.Every(time.Minute), 5),
		stopCh:     make(chan struct{}),
		reporterID: GenerateID(),
	}

	if cfg.flushInterval > 0 {
		t.loopDone = make(chan struct{})
		go t.flushLoop(cfg.flushInterval)
	}
	return t
}

// StartSpan creates a span. With ChildOf the span joins the parent's trace;
// otherwise it starts a new trace.
func (t *Tracer) StartSpan(operation string, opts ...StartSpanOption) *Span {
	var cfg StartSpanConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	start := cfg.StartTime
	if start.IsZero() {
		start = t.now()
	}

	span := &Span{
		tracer:    t,
		operation: operation,
		start:     start,
	}

	spanID := t.idPool.Get()
	if cfg.Parent != nil {
		span.ctx = cfg.Parent.withSpanID(spanID)
		span.parentID = cfg.Parent.spanID
	} else {
		span.ctx = SpanContext{traceID: t.idPool.Get(), spanID: spanID}
	}

	if len(cfg.Tags) > 0 {
		span.tags = make(map[string]string, len(cfg.Tags))
		for k, v := range cfg.Tags {
			span.tags[k] = v
		}
	}
	return span
}

// StartSpanFromContext starts a span that is a child of the span carried by
// ctx, if any, and returns it with a context carrying the new span. An
// explicit ChildOf option takes precedence over ctx.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operation string, opts ...StartSpanOption) (*Span, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if parent := SpanFromContext(ctx); parent != nil {
		opts = append([]StartSpanOption{ChildOf(parent.Context())}, opts...)
	}
	span := t.StartSpan(operation, opts...)
	return span, ContextWithSpan(ctx, span)
}

// collect takes ownership of a finished span.
func (t *Tracer) collect(raw *RawSpan) {
	t.metrics.spanFinished()
	if t.closed.Load() || t.disabled.Load() {
		t.buffer.CountDropped(1)
		t.metrics.spansDropped(1)
		return
	}
	if t.buffer.Add(raw) {
		t.metrics.spansDropped(1)
	}
}

func (t *Tracer) now() time.Time {
	return t.clock.Now()
}

// Enabled reports whether the tracer is still buffering and reporting spans.
func (t *Tracer) Enabled() bool {
	return !t.closed.Load() && !t.disabled.Load()
}

// AccessToken returns the configured access token.
func (t *Tracer) AccessToken() string { return t.cfg.accessToken }

// ComponentName returns the configured component name.
func (t *Tracer) ComponentName() string { return t.cfg.componentName }

// ReporterID returns the random ID identifying this tracer to the collector.
func (t *Tracer) ReporterID() ID { return t.reporterID }

// DroppedSpans returns the number of spans lost to buffer eviction, rejected
// reports, failed sends or a disabled tracer.
func (t *Tracer) DroppedSpans() uint64 { return t.buffer.Dropped() }

// BufferedSpans returns the number of finished spans awaiting a flush.
func (t *Tracer) BufferedSpans() int { return t.buffer.Len() }

// ClockState returns the tracer's clock-skew estimator.
func (t *Tracer) ClockState() *ClockState { return t.clockState }

// ClockOffsetMicros returns the offset applied to timestamps in the last report.
func (t *Tracer) ClockOffsetMicros() int64 { return t.clockState.OffsetMicros() }

func (t *Tracer) flushLoop(interval time.Duration) {
	defer close(t.loopDone)
	for {
		select {
		case <-t.stopCh:
			return
		case <-t.clock.After(interval):
			// The result channel is buffered; nobody needs to read it.
			t.Flush()
		}
	}
}

// Close stops automatic flushing, waits for an in-flight flush, sends the
// remaining buffered spans on a best-effort basis bounded by ctx, and
// releases background goroutines. Spans finished after Close are dropped.
func (t *Tracer) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.stopCh)
		if t.loopDone != nil {
			<-t.loopDone
		}

		err = t.finalFlush(ctx)

		t.idPool.Close()
		if c, ok := t.cfg.transport.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}

// finalFlush takes the report path for good and sends what is left.
func (t *Tracer) finalFlush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		t.flightMu.Lock()
		current := t.inFlight
		if current == nil {
			// Never closed: Flush after Close sees the path as taken.
			t.inFlight = make(chan struct{})
			t.flightMu.Unlock()
			break
		}
		t.flightMu.Unlock()

		select {
		case <-current:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	pending, res := t.prepareReport()
	if pending != nil {
		res = t.send(ctx, pending)
	}
	t.recordFlush(res)
	if errors.Is(res.Err, ErrNoTransport) || errors.Is(res.Err, ErrTracerDisabled) {
		return nil
	}
	return res.Err
}
