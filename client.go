package rpcgo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rpcgo/rpcgo/internal/bufferpool"
)

// Client issues calls against one procedure, its shape fixed at
// construction (spec §3, four call shapes). Concurrent calls from the
// same Client are safe; each call gets its own duplexHTTPCall.
type Client[Req, Res any] struct {
	httpClient       HTTPClient
	url              string
	spec             Spec
	config           *clientConfig
	codecs           *readOnlyCodecs
	compressionPools *readOnlyCompressionPools
	bufferPool       *bufferpool.Pool

	unaryFn  UnaryFunc
	streamFn StreamingClientFunc
}

// NewClient constructs a Client for one procedure. baseURL is the
// server's scheme://host[:port]; procedure is the full RPC path, e.g.
// "/acme.foo.v1.FooService/Bar".
func NewClient[Req, Res any](httpClient HTTPClient, baseURL, procedure string, streamType StreamType, opts ...ClientOption) *Client[Req, Res] {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt.applyToClient(cfg)
	}
	client := &Client[Req, Res]{
		httpClient:       httpClient,
		url:              strings.TrimRight(baseURL, "/") + procedure,
		spec:             Spec{StreamType: streamType, Procedure: procedure, IsClient: true},
		config:           cfg,
		codecs:           newReadOnlyCodecs(cfg.codecs),
		compressionPools: newReadOnlyCompressionPools(cfg.compressors, cfg.compressionNameList()),
		bufferPool:       bufferpool.New(),
	}
	client.streamFn = newChain(cfg.interceptors).WrapStreamingClient(client.newConn)
	client.unaryFn = newChain(cfg.interceptors).WrapUnary(client.callUnary)
	return client
}

// newConn builds the StreamingClientConn for one call, applying
// timeout, compression, and codec negotiation (spec §4.7 steps 1-3).
// Its signature matches StreamingClientFunc so it can be used directly
// as the base of the interceptor chain.
func (c *Client[Req, Res]) newConn(ctx context.Context, spec Spec) StreamingClientConn {
	codec, ok := c.codecs.Get(c.config.codecName)
	if !ok {
		codec = protoCodec{}
	}
	header := make(http.Header)
	header.Set("Content-Type", contentTypeForCodec(codec.Name()))
	header.Set("User-Agent", userAgentValue)
	header.Set("Te", "trailers")
	if accept := c.compressionPools.AcceptEncodingValue(); accept != "" {
		header.Set("Grpc-Accept-Encoding", accept)
	}
	if c.config.requestEncoding != "" && c.config.requestEncoding != CompressionIdentity {
		header.Set("Grpc-Encoding", c.config.requestEncoding)
	}

	timeout := c.config.timeout
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		if encoded, err := encodeTimeout(timeout); err == nil {
			header.Set("Grpc-Timeout", encoded)
		}
		// grpc-timeout only tells the server when to give up; the client
		// must also bound the call itself (spec §4.7 "Deadline expired:
		// mark future as DEADLINE_EXCEEDED; cancel transport", testable
		// invariant #7), since nothing requires the peer to honor the
		// header.
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	return newGRPCClientConn(
		ctx, c.httpClient, c.url, spec, header, codec,
		c.config.requestEncoding, c.compressionPools, c.bufferPool,
		c.config.compressMinBytes, c.config.sendMaxBytes, c.config.readMaxBytes,
		cancel,
	)
}

// callUnary is the base of the unary interceptor chain: one request
// message out, exactly one response message back, then the trailer is
// drained to confirm the call ended in OK (spec §4.7's unary shape).
func (c *Client[Req, Res]) callUnary(ctx context.Context, req AnyRequest) (AnyResponse, error) {
	conn := c.newConn(ctx, c.spec)
	mergeIntoHeader(conn.RequestHeader(), metadataFromHeader(req.Header()))

	if err := conn.Send(req.Any()); err != nil {
		_ = conn.CloseResponse()
		return nil, err
	}
	if err := conn.CloseRequest(); err != nil {
		_ = conn.CloseResponse()
		return nil, err
	}

	msg := new(Res)
	if err := conn.Receive(msg); err != nil {
		_ = conn.CloseResponse()
		return nil, err
	}
	resp := NewResponse(msg)
	mergeHeaders(resp.Header(), conn.ResponseHeader())

	if err := conn.Receive(new(Res)); err != nil && !errors.Is(err, io.EOF) {
		_ = conn.CloseResponse()
		return nil, err
	}
	mergeHeaders(resp.Trailer(), conn.ResponseTrailer())

	if err := conn.CloseResponse(); err != nil {
		return nil, err
	}
	return resp, nil
}

// CallUnary performs a single request/response call.
func (c *Client[Req, Res]) CallUnary(ctx context.Context, req *Request[Req]) (*Response[Res], error) {
	req.spec = c.spec
	anyResp, err := c.unaryFn(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, ok := anyResp.(*Response[Res])
	if !ok {
		return nil, Errorf(CodeInternal, "unexpected response type %T", anyResp)
	}
	return resp, nil
}

// CallServerStream sends a single request and returns a stream of
// responses.
func (c *Client[Req, Res]) CallServerStream(ctx context.Context, req *Request[Req]) (*ServerStreamForClient[Res], error) {
	spec := Spec{StreamType: StreamTypeServer, Procedure: c.spec.Procedure, IsClient: true}
	conn := c.streamFn(ctx, spec)
	mergeIntoHeader(conn.RequestHeader(), metadataFromHeader(req.Header()))
	if err := conn.Send(req.Any()); err != nil {
		_ = conn.CloseResponse()
		return nil, err
	}
	if err := conn.CloseRequest(); err != nil {
		_ = conn.CloseResponse()
		return nil, err
	}
	return &ServerStreamForClient[Res]{conn: conn}, nil
}

// CallClientStream returns a stream the caller sends requests into,
// ending with one aggregate response.
func (c *Client[Req, Res]) CallClientStream(ctx context.Context) *ClientStreamForClient[Req, Res] {
	spec := Spec{StreamType: StreamTypeClient, Procedure: c.spec.Procedure, IsClient: true}
	return &ClientStreamForClient[Req, Res]{conn: c.streamFn(ctx, spec)}
}

// CallBidiStream returns a stream of independent, interleaved sends
// and receives.
func (c *Client[Req, Res]) CallBidiStream(ctx context.Context) *BidiStreamForClient[Req, Res] {
	spec := Spec{StreamType: StreamTypeBidi, Procedure: c.spec.Procedure, IsClient: true}
	return &BidiStreamForClient[Req, Res]{conn: c.streamFn(ctx, spec)}
}

// ServerStreamForClient iterates the responses of a server-streaming
// call, in the style of sql.Rows: call Receive in a loop, check Err
// after it returns false.
type ServerStreamForClient[Res any] struct {
	conn StreamingClientConn
	msg  *Res
	err  *Error
}

// Receive advances to the next message, returning false at the end of
// the stream (whether by a clean OK close or a terminal error -- check
// Err to distinguish them).
func (s *ServerStreamForClient[Res]) Receive() bool {
	if s.err != nil {
		return false
	}
	msg := new(Res)
	err := s.conn.Receive(msg)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = toError(err)
		}
		return false
	}
	s.msg = msg
	return true
}

func (s *ServerStreamForClient[Res]) Msg() *Res { return s.msg }

func (s *ServerStreamForClient[Res]) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

func (s *ServerStreamForClient[Res]) ResponseHeader() http.Header  { return s.conn.ResponseHeader() }
func (s *ServerStreamForClient[Res]) ResponseTrailer() http.Header { return s.conn.ResponseTrailer() }

// Close releases the underlying connection. Callers should call Close
// once Receive returns false.
func (s *ServerStreamForClient[Res]) Close() error { return s.conn.CloseResponse() }

// ClientStreamForClient sends a sequence of requests and receives a
// single aggregate response.
type ClientStreamForClient[Req, Res any] struct {
	conn StreamingClientConn
	err  *Error
}

func (s *ClientStreamForClient[Req, Res]) RequestHeader() http.Header { return s.conn.RequestHeader() }

// Send sends one request message.
func (s *ClientStreamForClient[Req, Res]) Send(msg *Req) error {
	if s.err != nil {
		return s.err
	}
	if err := s.conn.Send(msg); err != nil {
		s.err = toError(err)
		return s.err
	}
	return nil
}

// CloseAndReceive half-closes the request stream and reads the single
// response message.
func (s *ClientStreamForClient[Req, Res]) CloseAndReceive() (*Response[Res], error) {
	if s.err != nil {
		_ = s.conn.CloseResponse()
		return nil, s.err
	}
	if err := s.conn.CloseRequest(); err != nil {
		_ = s.conn.CloseResponse()
		return nil, err
	}
	msg := new(Res)
	if err := s.conn.Receive(msg); err != nil {
		_ = s.conn.CloseResponse()
		return nil, err
	}
	resp := NewResponse(msg)
	mergeHeaders(resp.Header(), s.conn.ResponseHeader())
	if err := s.conn.Receive(new(Res)); err != nil && !errors.Is(err, io.EOF) {
		_ = s.conn.CloseResponse()
		return nil, err
	}
	mergeHeaders(resp.Trailer(), s.conn.ResponseTrailer())
	if err := s.conn.CloseResponse(); err != nil {
		return nil, err
	}
	return resp, nil
}

// BidiStreamForClient sends and receives independently over the same
// call, for full-duplex RPCs.
type BidiStreamForClient[Req, Res any] struct {
	conn StreamingClientConn
}

func (s *BidiStreamForClient[Req, Res]) RequestHeader() http.Header { return s.conn.RequestHeader() }
func (s *BidiStreamForClient[Req, Res]) Send(msg *Req) error        { return s.conn.Send(msg) }
func (s *BidiStreamForClient[Req, Res]) CloseRequest() error        { return s.conn.CloseRequest() }

func (s *BidiStreamForClient[Req, Res]) Receive() (*Res, error) {
	msg := new(Res)
	if err := s.conn.Receive(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BidiStreamForClient[Req, Res]) ResponseHeader() http.Header  { return s.conn.ResponseHeader() }
func (s *BidiStreamForClient[Req, Res]) ResponseTrailer() http.Header { return s.conn.ResponseTrailer() }
func (s *BidiStreamForClient[Req, Res]) CloseResponse() error         { return s.conn.CloseResponse() }

func toError(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(CodeUnknown, err)
}
