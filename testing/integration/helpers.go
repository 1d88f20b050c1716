package integration

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/zoobzio/clockz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/transport/grpcreport"
	"github.com/zoobzio/spanz/transport/httpreport"
	"github.com/zoobzio/spanz/wire"
)

// MockCollector is an in-process collector reachable over HTTP and gRPC.
// It decodes every report it receives and answers with receive/transmit
// timestamps taken from its own clock, which can be skewed from the tracer's.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	t       *testing.T
	clock   clockz.Clock
	reports []*wire.Report
	tokens  []string
	errors  []string
	skew    time.Duration
	status  int
	disable bool
	mu      sync.Mutex

	httpServer *httptest.Server
	grpcConn   *grpc.ClientConn
}

// NewMockCollector starts a collector on both transports. Servers are shut
// down when the test ends.
func NewMockCollector(t *testing.T) *MockCollector {
	t.Helper()
	m := &MockCollector{t: t, clock: clockz.RealClock}

	m.httpServer = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	t.Cleanup(m.httpServer.Close)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(grpcreport.RawCodec{}))
	grpcreport.RegisterCollector(srv, m.serveGRPC)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///collector",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial gRPC collector: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	m.grpcConn = conn
	return m
}

// URL returns the HTTP report endpoint.
func (m *MockCollector) URL() string { return m.httpServer.URL + "/api/v2/reports" }

// HTTPTransport returns a transport posting to the collector.
func (m *MockCollector) HTTPTransport(opts ...httpreport.Option) *httpreport.Transport {
	return httpreport.New(m.URL(), opts...)
}

// GRPCTransport returns a transport calling the collector over gRPC.
func (m *MockCollector) GRPCTransport(opts ...grpcreport.Option) *grpcreport.Transport {
	return grpcreport.New(m.grpcConn, opts...)
}

// SetClock sets the clock used for response timestamps.
func (m *MockCollector) SetClock(clock clockz.Clock) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
}

// SetSkew makes the collector's clock run ahead of its clock source by d.
func (m *MockCollector) SetSkew(d time.Duration) {
	m.mu.Lock()
	m.skew = d
	m.mu.Unlock()
}

// SetStatus makes the HTTP endpoint answer with status; 0 restores 200.
// Reports rejected this way are not recorded.
func (m *MockCollector) SetStatus(status int) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

// SetDisable makes every response carry the disable command.
func (m *MockCollector) SetDisable(disable bool) {
	m.mu.Lock()
	m.disable = disable
	m.mu.Unlock()
}

// SetErrors makes every response carry errs.
func (m *MockCollector) SetErrors(errs ...string) {
	m.mu.Lock()
	m.errors = errs
	m.mu.Unlock()
}

func (m *MockCollector) serveHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()
	if status != 0 && status != http.StatusOK {
		http.Error(w, "collector unavailable", status)
		return
	}

	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := kgzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		reader = zr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := m.receive(r.Header.Get(httpreport.AccessTokenHeader), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", httpreport.ContentType)
	_, _ = w.Write(resp)
}

func (m *MockCollector) serveGRPC(ctx context.Context, body []byte) ([]byte, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(grpcreport.AccessTokenMetadata); len(v) > 0 {
			token = v[0]
		}
	}
	return m.receive(token, body)
}

func (m *MockCollector) receive(token string, body []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	received := m.clock.Now().Add(m.skew).UnixMicro()
	report, err := wire.DecodeReport(body)
	if err != nil {
		return nil, fmt.Errorf("undecodable report: %w", err)
	}
	m.reports = append(m.reports, report)
	m.tokens = append(m.tokens, token)

	return wire.EncodeReportResponse(&wire.ReportResponse{
		ReceiveMicros:  received,
		TransmitMicros: m.clock.Now().Add(m.skew).UnixMicro(),
		Disable:        m.disable,
		Errors:         m.errors,
	}), nil
}

// Reports returns every report received so far.
func (m *MockCollector) Reports() []*wire.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*wire.Report, len(m.reports))
	copy(out, m.reports)
	return out
}

// Tokens returns the access token sent with each report.
func (m *MockCollector) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tokens))
	copy(out, m.tokens)
	return out
}

// Spans returns the spans of every report, in arrival order.
func (m *MockCollector) Spans() []wire.Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	var spans []wire.Span
	for _, r := range m.reports {
		spans = append(spans, r.Spans...)
	}
	return spans
}

// DroppedCount sums the dropped-span counters across reports.
func (m *MockCollector) DroppedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, r := range m.reports {
		for _, c := range r.Counts {
			if c.Name == spanz.MetricSpansDropped {
				total += c.Value
			}
		}
	}
	return total
}

// WaitForSpans waits for at least expected spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []wire.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		spans := m.Spans()
		if len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.Spans()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	if spans := m.Spans(); len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed checks if a span with given operation exists.
func (m *MockCollector) AssertSpanNamed(name string) *wire.Span {
	spans := m.Spans()
	for i := range spans {
		if spans[i].Operation == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}

	if child.ParentSpanID != parent.SpanID {
		m.t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentSpanID=%x, Parent SpanID=%x",
			parentName, childName, child.ParentSpanID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Trace ID mismatch: parent=%x, child=%x", parent.TraceID, child.TraceID)
	}
}

// FlushOK flushes tracer and fails the test on error.
func FlushOK(t *testing.T, tracer *spanz.Tracer) spanz.FlushResult {
	t.Helper()
	select {
	case res := <-tracer.Flush():
		if res.Err != nil {
			t.Fatalf("Flush failed: %v", res.Err)
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("Flush did not complete")
		return spanz.FlushResult{}
	}
}

// TagsOf returns a span's string tags as a map.
func TagsOf(span *wire.Span) map[string]string {
	tags := make(map[string]string, len(span.Tags))
	for _, kv := range span.Tags {
		tags[kv.Key] = kv.StringValue
	}
	return tags
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     wire.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list.
func BuildSpanTree(spans []wire.Span) []*SpanTree {
	nodeMap := make(map[uint64]*SpanTree)
	roots := make([]*SpanTree, 0)

	for i := range spans {
		nodeMap[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	for i := range spans {
		span := spans[i]
		node := nodeMap[span.SpanID]
		if parent, exists := nodeMap[span.ParentSpanID]; span.ParentSpanID != 0 && exists {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s (%.2fms)\n",
		indent, node.Span.Operation, float64(node.Span.DurationMicros)/1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	byName map[string][]wire.Span
	spans  []wire.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []wire.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:  spans,
		byName: make(map[string][]wire.Span),
	}
	for i := range spans {
		a.byName[spans[i].Operation] = append(a.byName[spans[i].Operation], spans[i])
	}
	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpansByName retrieves all spans with given operation.
func (a *TraceAnalyzer) GetSpansByName(name string) []wire.Span {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int { return len(a.spans) }

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int { return len(a.trees) }

// CountTraces returns the number of distinct trace IDs.
func (a *TraceAnalyzer) CountTraces() int {
	seen := make(map[uint64]struct{})
	for i := range a.spans {
		seen[a.spans[i].TraceID] = struct{}{}
	}
	return len(seen)
}

// VerifyChain checks if spans form a valid parent-child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *wire.Span
	for i, name := range names {
		spans := a.GetSpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]
		if prev != nil && span.ParentSpanID != prev.SpanID {
			return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
		}
		prev = &span
	}
	return nil
}

// MockService simulates a remote service reached over HTTP. Incoming
// requests carry the caller's span context in headers; the service continues
// the trace with its own tracer.
type MockService struct {
	tracer      *spanz.Tracer
	server      *httptest.Server
	name        string
	latency     time.Duration
	failureRate float32
	mu          sync.Mutex
}

// NewMockService starts a service. Its server is closed when the test ends.
func NewMockService(t *testing.T, name string, tracer *spanz.Tracer) *MockService {
	s := &MockService{name: name, tracer: tracer, latency: time.Millisecond}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

// SetLatency configures response time.
func (s *MockService) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// SetFailureRate configures error probability (0.0-1.0).
func (s *MockService) SetFailureRate(rate float32) {
	s.mu.Lock()
	s.failureRate = rate
	s.mu.Unlock()
}

func (s *MockService) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	latency := s.latency
	fail := rand.Float32() < s.failureRate //nolint:gosec // test jitter
	s.mu.Unlock()

	var opts []spanz.StartSpanOption
	if sc, err := s.tracer.Extract(spanz.FormatHTTPHeaders, r.Header); err == nil {
		opts = append(opts, spanz.ChildOf(sc))
	}
	operation := strings.TrimPrefix(r.URL.Path, "/")
	span := s.tracer.StartSpan(s.name+"."+operation, opts...)
	defer span.Finish()
	span.SetTag("service", s.name)

	time.Sleep(latency)

	if fail {
		span.LogError("request failed", fmt.Errorf("%s: simulated failure", s.name))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if v, ok := span.BaggageItem("user"); ok {
		span.SetTag("user", v)
	}
	w.WriteHeader(http.StatusOK)
}

// Call performs operation on the service as a child of the span in ctx.
func (s *MockService) Call(ctx context.Context, caller *spanz.Tracer, operation string) error {
	span, ctx := caller.StartSpanFromContext(ctx, "call."+s.name)
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/"+operation, http.NoBody)
	if err != nil {
		return err
	}
	if err := caller.Inject(span.Context(), spanz.FormatHTTPHeaders, req.Header); err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		span.LogError("call failed", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %d", s.name, resp.StatusCode)
		span.LogError("call failed", err)
		return err
	}
	return nil
}
