package spanz

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/zoobzio/spanz/wire"
)

// FlushResult describes the outcome of one flush.
type FlushResult struct {
	// Err is nil on success. Transport errors are passed through unchanged.
	Err error
	// Spans is the number of spans in the report, whether or not it was sent.
	Spans int
	// Bytes is the encoded report size.
	Bytes int
	// Skipped is set when another flush was already in flight.
	Skipped bool
}

// pendingReport is an encoded report waiting for the transport.
type pendingReport struct {
	payload []byte
	spans   int
	// dropped is the buffer's dropped total when the report was built.
	dropped uint64
}

// Flush sends every buffered span to the collector. It returns immediately;
// the channel delivers exactly one result and is then closed. Only one flush
// runs at a time: a flush requested while another is in flight is skipped and
// reports ErrFlushInFlight.
func (t *Tracer) Flush() <-chan FlushResult {
	out := make(chan FlushResult, 1)

	if t.closed.Load() {
		out <- FlushResult{Err: ErrTracerClosed}
		close(out)
		return out
	}
	if !t.beginFlight() {
		res := FlushResult{Skipped: true, Err: ErrFlushInFlight}
		t.recordFlush(res)
		out <- res
		close(out)
		return out
	}

	pending, res := t.prepareReport()
	if pending == nil {
		t.endFlight()
		t.recordFlush(res)
		out <- res
		close(out)
		return out
	}

	go func() {
		res := t.send(context.Background(), pending)
		t.recordFlush(res)
		t.endFlight()
		out <- res
		close(out)
	}()
	return out
}

func (t *Tracer) beginFlight() bool {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()
	if t.inFlight != nil {
		return false
	}
	t.inFlight = make(chan struct{})
	return true
}

func (t *Tracer) endFlight() {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()
	if t.inFlight != nil {
		close(t.inFlight)
		t.inFlight = nil
	}
}

// prepareReport drains the buffer and encodes a report. A nil report means
// there is nothing to send and the result is final. The caller must own the
// flight.
func (t *Tracer) prepareReport() (*pendingReport, FlushResult) {
	if t.cfg.transport == nil {
		return nil, FlushResult{Err: ErrNoTransport}
	}

	spans := t.buffer.Drain()
	dropped := t.buffer.Dropped()
	delta := dropped - t.reportedDropped
	if dropped < t.reportedDropped {
		// The buffer was reset since the last report.
		delta = dropped
	}
	if len(spans) == 0 && delta == 0 {
		return nil, FlushResult{}
	}

	if t.disabled.Load() {
		t.dropSpans(len(spans))
		return nil, FlushResult{Spans: len(spans), Err: ErrTracerDisabled}
	}

	t.clockState.Update()
	offset := t.clockState.OffsetMicros()
	t.metrics.clockOffset(offset)

	report := t.buildReport(spans, offset)
	if oversize := t.dropOversizeSpans(report); oversize > 0 {
		dropped += uint64(oversize)
		delta += uint64(oversize)
	}
	if delta > 0 {
		report.Counts = droppedCounts(delta)
	}

	payload := wire.EncodeReport(report)
	n := len(report.Spans)
	if len(payload) > t.cfg.maxPayloadLength {
		t.dropSpans(n)
		err := fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(payload), t.cfg.maxPayloadLength)
		t.logFailure("report rejected", err, zap.Int("spans", n))
		return nil, FlushResult{Spans: n, Bytes: len(payload), Err: err}
	}

	return &pendingReport{payload: payload, spans: n, dropped: dropped}, FlushResult{}
}

// dropOversizeSpans removes spans that could not fit in a report on their
// own and counts them as dropped. It returns how many were removed.
func (t *Tracer) dropOversizeSpans(r *wire.Report) int {
	envelope := len(wire.EncodeReport(&wire.Report{
		AccessToken:  r.AccessToken,
		ReporterID:   r.ReporterID,
		ReporterTags: r.ReporterTags,
		Counts:       droppedCounts(math.MaxInt64),
	}))
	budget := t.cfg.maxPayloadLength - envelope

	kept := r.Spans[:0]
	oversize := 0
	for i := range r.Spans {
		if size := wire.SpanSize(&r.Spans[i]); size > budget {
			oversize++
			t.logFailure("span exceeds payload limit", ErrPayloadTooLarge,
				zap.String("operation", r.Spans[i].Operation), zap.Int("bytes", size))
			continue
		}
		kept = append(kept, r.Spans[i])
	}
	r.Spans = kept
	if oversize > 0 {
		t.dropSpans(oversize)
	}
	return oversize
}

// send hands the report to the transport and applies the collector's reply.
// Spans in a failed send are counted as dropped; nothing is retried.
func (t *Tracer) send(ctx context.Context, p *pendingReport) FlushResult {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.flushTimeout)
	defer cancel()

	res := FlushResult{Spans: p.spans, Bytes: len(p.payload)}

	origin := NowMicros(t.clock)
	resp, err := t.safeSend(ctx, p.payload)
	destination := NowMicros(t.clock)
	if err != nil {
		t.dropSpans(p.spans)
		t.logFailure("report send failed", err, zap.Int("spans", p.spans), zap.Int("bytes", len(p.payload)))
		res.Err = err
		return res
	}

	t.reportedDropped = p.dropped
	t.applyResponse(resp, origin, destination)
	return res
}

// safeSend calls the transport, turning a panic into an error.
func (t *Tracer) safeSend(ctx context.Context, payload []byte) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spanz: transport panicked: %v", r)
		}
	}()
	return t.cfg.transport.Send(ctx, payload)
}

func (t *Tracer) applyResponse(b []byte, origin, destination int64) {
	resp, err := wire.DecodeReportResponse(b)
	if err != nil {
		t.logFailure("undecodable collector response", err)
		return
	}
	if resp.HasTimestamps() {
		t.clockState.AddSample(origin, resp.ReceiveMicros, resp.TransmitMicros, destination)
	}
	for _, e := range resp.Errors {
		t.logger.Warn("collector error", zap.String("error", e))
	}
	if resp.Disable && !t.disabled.Swap(true) {
		t.logger.Warn("collector disabled the tracer; further spans are dropped")
	}
}

func (t *Tracer) dropSpans(n int) {
	t.buffer.CountDropped(n)
	t.metrics.spansDropped(n)
}

// logFailure logs at most a few failures per minute.
func (t *Tracer) logFailure(msg string, err error, fields ...zap.Field) {
	if !t.errLimiter.Allow() {
		return
	}
	t.logger.Warn(msg, append(fields, zap.Error(err))...)
}

func (t *Tracer) recordFlush(res FlushResult) {
	var result string
	switch {
	case res.Skipped:
		result = flushSkipped
	case errors.Is(res.Err, ErrPayloadTooLarge):
		result = flushTooLarge
	case res.Err != nil:
		result = flushError
	case res.Bytes == 0:
		result = flushEmpty
	default:
		result = flushSuccess
	}
	t.metrics.flush(result, res.Bytes)
}
