// Package grpcreport sends encoded span reports to a collector over gRPC.
//
// The report is already serialized by the wire codec, so calls go through a
// pass-through codec that hands the bytes to gRPC untouched.
package grpcreport

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	// ServiceName is the collector's gRPC service.
	ServiceName = "lightstep.collector.CollectorService"
	// ReportMethod is the full method name of the unary report call.
	ReportMethod = "/" + ServiceName + "/Report"
	// AccessTokenMetadata carries the project access token.
	AccessTokenMetadata = "lightstep-access-token"
)

// RawCodec passes pre-encoded messages through gRPC. Values must be *[]byte.
// It registers under the "proto" name so the collector sees an ordinary
// protobuf content type.
type RawCodec struct{}

// Marshal returns the bytes held by v.
func (RawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("grpcreport: cannot marshal %T", v)
	}
	return *b, nil
}

// Unmarshal copies data into v.
func (RawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpcreport: cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

// Name implements encoding.Codec.
func (RawCodec) Name() string { return "proto" }

// Transport makes one unary call per report. Safe for concurrent use.
type Transport struct {
	conn        *grpc.ClientConn
	accessToken string
	ownsConn    bool
}

type options struct {
	tlsConfig   *tls.Config
	accessToken string
	dialOpts    []grpc.DialOption
	plaintext   bool
}

// Option configures a Transport.
type Option func(*options)

// WithAccessToken sends token as call metadata.
func WithAccessToken(token string) Option {
	return func(o *options) { o.accessToken = token }
}

// WithPlaintext disables transport security.
func WithPlaintext(plaintext bool) Option {
	return func(o *options) { o.plaintext = plaintext }
}

// WithTLSConfig sets the TLS configuration used when plaintext is off.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Dial creates a transport for target. The connection is established lazily
// on the first report and closed by Close.
func Dial(target string, opts ...Option) (*Transport, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	creds := insecure.NewCredentials()
	if !o.plaintext {
		creds = credentials.NewTLS(o.tlsConfig)
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, o.dialOpts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpcreport: dial %s: %w", target, err)
	}
	return &Transport{conn: conn, accessToken: o.accessToken, ownsConn: true}, nil
}

// New wraps an existing connection. Close leaves conn open.
func New(conn *grpc.ClientConn, opts ...Option) *Transport {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Transport{conn: conn, accessToken: o.accessToken}
}

// Send performs the report call and returns the encoded response. gRPC status
// errors are returned unchanged.
func (t *Transport) Send(ctx context.Context, payload []byte) ([]byte, error) {
	if t.accessToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AccessTokenMetadata, t.accessToken)
	}
	var resp []byte
	if err := t.conn.Invoke(ctx, ReportMethod, &payload, &resp, grpc.ForceCodec(RawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection if the transport created it.
func (t *Transport) Close() error {
	if !t.ownsConn {
		return nil
	}
	return t.conn.Close()
}

// ReportHandler answers one encoded report with an encoded response.
type ReportHandler func(ctx context.Context, report []byte) ([]byte, error)

// RegisterCollector serves the report method on s with handler. The server
// must be created with grpc.ForceServerCodec(RawCodec{}). Used by fake
// collectors in tests and local tooling.
func RegisterCollector(s *grpc.Server, handler ReportHandler) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Report",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				var in []byte
				if err := dec(&in); err != nil {
					return nil, err
				}
				out, err := handler(ctx, in)
				if err != nil {
					return nil, err
				}
				return &out, nil
			},
		}},
	}, struct{}{})
}
