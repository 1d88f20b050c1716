package config

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/transport/grpcreport"
	"github.com/zoobzio/spanz/transport/httpreport"
	"github.com/zoobzio/spanz/wire"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spanz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, spanz.DefaultMaxSpanRecords, cfg.Tracer.MaxSpanRecords)
	assert.Equal(t, spanz.DefaultFlushInterval, cfg.Tracer.FlushInterval)
	assert.Equal(t, ProtocolHTTP, cfg.Collector.Protocol)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPANZ_ACCESS_TOKEN", "token-1")
	t.Setenv("SPANZ_COMPONENT_NAME", "checkout")
	t.Setenv("SPANZ_MAX_SPAN_RECORDS", "50")
	t.Setenv("SPANZ_FLUSH_INTERVAL", "5s")
	t.Setenv("SPANZ_TAGS", "env:test,region:eu")
	t.Setenv("SPANZ_COLLECTOR_URL", "collector:8443")
	t.Setenv("SPANZ_COLLECTOR_PROTOCOL", "grpc")
	t.Setenv("SPANZ_COLLECTOR_GZIP", "true")
	t.Setenv("SPANZ_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token-1", cfg.Tracer.AccessToken)
	assert.Equal(t, "checkout", cfg.Tracer.ComponentName)
	assert.Equal(t, 50, cfg.Tracer.MaxSpanRecords)
	assert.Equal(t, 5*time.Second, cfg.Tracer.FlushInterval)
	assert.Equal(t, map[string]string{"env": "test", "region": "eu"}, cfg.Tracer.Tags)
	assert.Equal(t, "collector:8443", cfg.Collector.URL)
	assert.Equal(t, ProtocolGRPC, cfg.Collector.Protocol)
	assert.True(t, cfg.Collector.Gzip)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset variables keep their defaults.
	assert.Equal(t, spanz.DefaultFlushTimeout, cfg.Tracer.FlushTimeout)
	assert.Equal(t, spanz.DefaultMaxPayloadLength, cfg.Tracer.MaxPayloadLength)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("SPANZ_MAX_SPAN_RECORDS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")

	cfg := LoadOrDefault()
	assert.Equal(t, spanz.DefaultMaxSpanRecords, cfg.Tracer.MaxSpanRecords)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
tracer:
  access_token: from-file
  component_name: inventory
  max_span_records: 200
  flush_interval: 10s
  tags:
    team: storage
collector:
  url: http://localhost:8080/api/v2/reports
  retries: 2
logging:
  level: warn
  development: true
`)
	t.Setenv("SPANZ_ACCESS_TOKEN", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Tracer.AccessToken)
	assert.Equal(t, "inventory", cfg.Tracer.ComponentName)
	assert.Equal(t, 200, cfg.Tracer.MaxSpanRecords)
	assert.Equal(t, 10*time.Second, cfg.Tracer.FlushInterval)
	assert.Equal(t, map[string]string{"team": "storage"}, cfg.Tracer.Tags)
	assert.Equal(t, "http://localhost:8080/api/v2/reports", cfg.Collector.URL)
	assert.Equal(t, 2, cfg.Collector.Retries)
	assert.Equal(t, ProtocolHTTP, cfg.Collector.Protocol)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")

	path := writeFile(t, "tracer: [unclosed\n")
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero span records", func(c *Config) { c.Tracer.MaxSpanRecords = 0 }},
		{"zero payload length", func(c *Config) { c.Tracer.MaxPayloadLength = 0 }},
		{"negative log payload", func(c *Config) { c.Tracer.MaxLogPayloadLength = -1 }},
		{"negative flush interval", func(c *Config) { c.Tracer.FlushInterval = -time.Second }},
		{"zero flush timeout", func(c *Config) { c.Tracer.FlushTimeout = 0 }},
		{"unknown protocol", func(c *Config) { c.Collector.Protocol = "udp" }},
		{"negative retries", func(c *Config) { c.Collector.Retries = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg := Default()
	cfg.Tracer.FlushInterval = 0
	cfg.Tracer.MaxLogPayloadLength = 0
	assert.NoError(t, cfg.Validate())
}

func TestTransportSelection(t *testing.T) {
	cfg := Default()
	tr, err := cfg.Transport(zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, tr)

	cfg.Collector.URL = "http://localhost:1/reports"
	tr, err = cfg.Transport(zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &httpreport.Transport{}, tr)

	cfg.Collector.URL = "localhost:1"
	cfg.Collector.Protocol = ProtocolGRPC
	cfg.Collector.Plaintext = true
	tr, err = cfg.Transport(zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &grpcreport.Transport{}, tr)
	assert.NoError(t, tr.(*grpcreport.Transport).Close())
}

func TestTracerOptionsRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Collector.Protocol = "carrier-pigeon"
	_, err := cfg.TracerOptions(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = cfg.NewTracer(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewTracerReportsToCollector(t *testing.T) {
	bodies := make(chan []byte, 1)
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		tokens <- r.Header.Get(httpreport.AccessTokenHeader)
		bodies <- data
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Default()
	cfg.Tracer.AccessToken = "cfg-token"
	cfg.Tracer.ComponentName = "payments"
	cfg.Tracer.FlushInterval = 0
	cfg.Tracer.Tags = map[string]string{"env": "test"}
	cfg.Collector.URL = srv.URL

	tracer, err := cfg.NewTracer(zap.NewNop())
	require.NoError(t, err)
	defer tracer.Close(context.Background())

	assert.Equal(t, "cfg-token", tracer.AccessToken())
	assert.Equal(t, "payments", tracer.ComponentName())

	tracer.StartSpan("charge").Finish()
	result := <-tracer.Flush()
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Spans)

	assert.Equal(t, "cfg-token", <-tokens)
	report, err := wire.DecodeReport(<-bodies)
	require.NoError(t, err)
	require.Len(t, report.Spans, 1)
	assert.Equal(t, "charge", report.Spans[0].Operation)

	tags := make(map[string]string)
	for _, kv := range report.ReporterTags {
		tags[kv.Key] = kv.StringValue
	}
	assert.Equal(t, "test", tags["env"])
	assert.Equal(t, "payments", tags[spanz.TagComponentName])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	logger, err = NewLogger(LogConfig{Development: true, Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
