// Package config loads tracer settings from the environment and YAML files
// and turns them into spanz options.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/transport/grpcreport"
	"github.com/zoobzio/spanz/transport/httpreport"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SPANZ"

// Collector protocols.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all tracer configuration.
type Config struct {
	Tracer    TracerConfig    `yaml:"tracer"`
	Collector CollectorConfig `yaml:"collector"`
	Logging   LogConfig       `yaml:"logging"`
}

// TracerConfig holds span buffering and reporting settings.
type TracerConfig struct {
	Tags                map[string]string `envconfig:"TAGS" yaml:"tags"`
	AccessToken         string            `envconfig:"ACCESS_TOKEN" yaml:"access_token"`
	ComponentName       string            `envconfig:"COMPONENT_NAME" yaml:"component_name"`
	MaxSpanRecords      int               `envconfig:"MAX_SPAN_RECORDS" yaml:"max_span_records"`
	MaxPayloadLength    int               `envconfig:"MAX_PAYLOAD_LENGTH" yaml:"max_payload_length"`
	MaxLogPayloadLength int               `envconfig:"MAX_LOG_PAYLOAD_LENGTH" yaml:"max_log_payload_length"`
	FlushInterval       time.Duration     `envconfig:"FLUSH_INTERVAL" yaml:"flush_interval"`
	FlushTimeout        time.Duration     `envconfig:"FLUSH_TIMEOUT" yaml:"flush_timeout"`
}

// CollectorConfig holds the report transport settings. An empty URL means
// no transport.
type CollectorConfig struct {
	URL       string `envconfig:"COLLECTOR_URL" yaml:"url"`
	Protocol  string `envconfig:"COLLECTOR_PROTOCOL" yaml:"protocol"`
	Retries   int    `envconfig:"COLLECTOR_RETRIES" yaml:"retries"`
	Plaintext bool   `envconfig:"COLLECTOR_PLAINTEXT" yaml:"plaintext"`
	Gzip      bool   `envconfig:"COLLECTOR_GZIP" yaml:"gzip"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Tracer: TracerConfig{
			MaxSpanRecords:      spanz.DefaultMaxSpanRecords,
			MaxPayloadLength:    spanz.DefaultMaxPayloadLength,
			MaxLogPayloadLength: spanz.DefaultMaxLogPayloadLength,
			FlushInterval:       spanz.DefaultFlushInterval,
			FlushTimeout:        spanz.DefaultFlushTimeout,
		},
		Collector: CollectorConfig{
			Protocol: ProtocolHTTP,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overridden by SPANZ_* environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overwrites fields whose environment variable is set. Sections are
// processed separately so variables read SPANZ_ACCESS_TOKEN rather than
// SPANZ_TRACER_ACCESS_TOKEN.
func (c *Config) applyEnv() error {
	for _, section := range []any{&c.Tracer, &c.Collector, &c.Logging} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	t := c.Tracer
	switch {
	case t.MaxSpanRecords <= 0:
		return fmt.Errorf("%w: max span records must be positive, got %d", ErrInvalidConfig, t.MaxSpanRecords)
	case t.MaxPayloadLength <= 0:
		return fmt.Errorf("%w: max payload length must be positive, got %d", ErrInvalidConfig, t.MaxPayloadLength)
	case t.MaxLogPayloadLength < 0:
		return fmt.Errorf("%w: max log payload length must not be negative, got %d", ErrInvalidConfig, t.MaxLogPayloadLength)
	case t.FlushInterval < 0:
		return fmt.Errorf("%w: flush interval must not be negative, got %s", ErrInvalidConfig, t.FlushInterval)
	case t.FlushTimeout <= 0:
		return fmt.Errorf("%w: flush timeout must be positive, got %s", ErrInvalidConfig, t.FlushTimeout)
	}

	switch c.Collector.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return fmt.Errorf("%w: unknown collector protocol %q", ErrInvalidConfig, c.Collector.Protocol)
	}
	if c.Collector.Retries < 0 {
		return fmt.Errorf("%w: collector retries must not be negative, got %d", ErrInvalidConfig, c.Collector.Retries)
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Transport builds the report transport, or returns nil when no collector
// URL is configured.
func (c *Config) Transport(logger *zap.Logger) (spanz.Transport, error) {
	col := c.Collector
	if col.URL == "" {
		return nil, nil
	}
	switch col.Protocol {
	case ProtocolGRPC:
		tr, err := grpcreport.Dial(col.URL,
			grpcreport.WithAccessToken(c.Tracer.AccessToken),
			grpcreport.WithPlaintext(col.Plaintext),
		)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return httpreport.New(col.URL,
			httpreport.WithAccessToken(c.Tracer.AccessToken),
			httpreport.WithGzip(col.Gzip),
			httpreport.WithRetries(col.Retries),
			httpreport.WithTimeout(c.Tracer.FlushTimeout),
			httpreport.WithLogger(logger),
		), nil
	}
}

// TracerOptions validates the configuration and converts it into options
// for spanz.New, including the transport.
func (c *Config) TracerOptions(logger *zap.Logger) ([]spanz.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := c.Tracer
	opts := []spanz.Option{
		spanz.WithAccessToken(t.AccessToken),
		spanz.WithComponentName(t.ComponentName),
		spanz.WithMaxSpanRecords(t.MaxSpanRecords),
		spanz.WithMaxPayloadLength(t.MaxPayloadLength),
		spanz.WithMaxLogPayloadLength(t.MaxLogPayloadLength),
		spanz.WithFlushInterval(t.FlushInterval),
		spanz.WithFlushTimeout(t.FlushTimeout),
		spanz.WithLogger(logger),
	}
	for k, v := range t.Tags {
		opts = append(opts, spanz.WithReporterTag(k, v))
	}

	transport, err := c.Transport(logger)
	if err != nil {
		return nil, err
	}
	if transport != nil {
		opts = append(opts, spanz.WithTransport(transport))
	}
	return opts, nil
}

// NewTracer builds a tracer from the configuration. Extra options are applied
// last.
func (c *Config) NewTracer(logger *zap.Logger, extra ...spanz.Option) (*spanz.Tracer, error) {
	opts, err := c.TracerOptions(logger)
	if err != nil {
		return nil, err
	}
	return spanz.New(append(opts, extra...)...), nil
}
