package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
	"github.com/zoobzio/spanz/opentracer"
)

// TestOpenTracingHop propagates a trace between an OpenTracing client and a
// native server through HTTP headers.
func TestOpenTracingHop(t *testing.T) {
	collector := NewMockCollector(t)
	tracer := spanz.New(spanz.WithFlushInterval(0), spanz.WithTransport(collector.GRPCTransport()))
	defer tracer.Close(context.Background())
	ot := opentracer.New(tracer)

	client := ot.StartSpan("client-request", ext.SpanKindRPCClient)
	client.SetBaggageItem("experiment", "b")

	headers := http.Header{}
	if err := ot.Inject(client.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers)); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	sc, err := tracer.Extract(spanz.FormatHTTPHeaders, headers)
	if err != nil {
		t.Fatalf("Native extract failed: %v", err)
	}
	server := tracer.StartSpan("server-handle", spanz.ChildOf(sc))
	if v, _ := server.BaggageItem("experiment"); v != "b" {
		t.Errorf("Expected baggage b on server, got %q", v)
	}
	server.Finish()

	client.LogFields(otlog.String("event", "response"), otlog.Int("status", 200))
	client.Finish()
	FlushOK(t, tracer)

	collector.AssertParentChild("client-request", "server-handle")
	if span := collector.AssertSpanNamed("client-request"); span != nil {
		if TagsOf(span)["span.kind"] != "client" {
			t.Errorf("Expected span.kind tag, got %v", TagsOf(span))
		}
		if len(span.Logs) != 1 {
			t.Errorf("Expected 1 log, got %d", len(span.Logs))
		}
	}
}

// TestTracerFromConfigFile builds a tracer from a YAML file and environment
// overrides and checks what reaches the collector.
func TestTracerFromConfigFile(t *testing.T) {
	collector := NewMockCollector(t)

	path := filepath.Join(t.TempDir(), "spanz.yaml")
	yamlConfig := "tracer:\n" +
		"  component_name: config-service\n" +
		"  flush_interval: 0s\n" +
		"  tags:\n" +
		"    region: eu-west\n" +
		"collector:\n" +
		"  url: " + collector.URL() + "\n" +
		"  gzip: true\n"
	if err := os.WriteFile(path, []byte(yamlConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("SPANZ_ACCESS_TOKEN", "env-token")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tracer, err := cfg.NewTracer(logger.With(zap.String("test", t.Name())))
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}

	tracer.StartSpan("configured").Finish()
	if err := tracer.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	collector.AssertSpanCount(1)
	reports := collector.Reports()
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	if got := collector.Tokens()[0]; got != "env-token" {
		t.Errorf("Expected env-token header, got %q", got)
	}
	if reports[0].AccessToken != "env-token" {
		t.Errorf("Expected env-token in report, got %q", reports[0].AccessToken)
	}

	tags := make(map[string]string)
	for _, kv := range reports[0].ReporterTags {
		tags[kv.Key] = kv.StringValue
	}
	if tags["region"] != "eu-west" || tags[spanz.TagComponentName] != "config-service" {
		t.Errorf("Unexpected reporter tags: %v", tags)
	}
}
