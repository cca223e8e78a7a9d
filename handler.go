package rpcgo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rpcgo/rpcgo/internal/bufferpool"
)

// receiveUnaryRequest implements spec §4.8 step 5's unary-request rule:
// decode exactly one message, failing CodeInternal if the client sent
// zero or more than one.
func receiveUnaryRequest[Req any](conn StreamingHandlerConn) (*Req, error) {
	msg := new(Req)
	if err := conn.Receive(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Errorf(CodeInternal, "unary call had no request message")
		}
		return nil, err
	}
	switch err := conn.Receive(new(Req)); {
	case errors.Is(err, io.EOF):
		return msg, nil
	case err == nil:
		return nil, Errorf(CodeInternal, "unary call had more than one request message")
	default:
		return nil, err
	}
}

// Handler serves one procedure over gRPC-over-HTTP/2 (spec §4.8). It
// implements http.Handler directly, so it can be mounted on any mux
// that respects its path.
type Handler struct {
	spec             Spec
	config           *handlerConfig
	codecs           *readOnlyCodecs
	compressionPools *readOnlyCompressionPools
	bufferPool       *bufferpool.Pool
	implementation   StreamingHandlerFunc
}

func newHandler(procedure string, streamType StreamType, cfg *handlerConfig, impl StreamingHandlerFunc) *Handler {
	return &Handler{
		spec:             Spec{StreamType: streamType, Procedure: procedure, IsClient: false},
		config:           cfg,
		codecs:           newReadOnlyCodecs(cfg.codecs),
		compressionPools: newReadOnlyCompressionPools(cfg.compressors, cfg.compressionNameList()),
		bufferPool:       bufferpool.New(),
		implementation:   impl,
	}
}

// NewUnaryHandler builds a Handler for a single request/response
// procedure. Unary interceptors run around unary, the business
// function; they never see the envelope bookkeeping.
func NewUnaryHandler[Req, Res any](
	procedure string,
	unary func(ctx context.Context, req *Request[Req]) (*Response[Res], error),
	opts ...HandlerOption,
) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt.applyToHandler(cfg)
	}
	wrapped := newChain(cfg.interceptors).WrapUnary(func(ctx context.Context, req AnyRequest) (AnyResponse, error) {
		typed, ok := req.(*Request[Req])
		if !ok {
			return nil, Errorf(CodeInternal, "unexpected request type %T", req)
		}
		return unary(ctx, typed)
	})
	impl := func(ctx context.Context, conn StreamingHandlerConn) error {
		msg, err := receiveUnaryRequest[Req](conn)
		if err != nil {
			return err
		}
		req := &Request[Req]{Msg: msg, spec: conn.Spec(), peer: conn.Peer(), header: conn.RequestHeader()}
		anyResp, err := wrapped(ctx, req)
		if err != nil {
			return err
		}
		resp, ok := anyResp.(*Response[Res])
		if !ok {
			return Errorf(CodeInternal, "unexpected response type %T", anyResp)
		}
		mergeHeaders(conn.ResponseHeader(), resp.Header())
		mergeHeaders(conn.ResponseTrailer(), resp.Trailer())
		return conn.Send(resp.Any())
	}
	// Unary business logic is already wrapped above; cfg.interceptors
	// must not also wrap the streaming adapter, so this Handler is built
	// with an empty interceptor set for its streaming layer.
	streamCfg := *cfg
	streamCfg.interceptors = nil
	return newHandler(procedure, StreamTypeUnary, &streamCfg, impl)
}

// NewClientStreamHandler builds a Handler for a client-streaming
// procedure.
func NewClientStreamHandler[Req, Res any](
	procedure string,
	implementation func(ctx context.Context, stream *ClientStream[Req]) (*Response[Res], error),
	opts ...HandlerOption,
) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt.applyToHandler(cfg)
	}
	impl := newChain(cfg.interceptors).WrapStreamingHandler(func(ctx context.Context, conn StreamingHandlerConn) error {
		resp, err := implementation(ctx, &ClientStream[Req]{conn: conn})
		if err != nil {
			return err
		}
		mergeHeaders(conn.ResponseHeader(), resp.Header())
		mergeHeaders(conn.ResponseTrailer(), resp.Trailer())
		return conn.Send(resp.Any())
	})
	return newHandler(procedure, StreamTypeClient, cfg, impl)
}

// NewServerStreamHandler builds a Handler for a server-streaming
// procedure.
func NewServerStreamHandler[Req, Res any](
	procedure string,
	implementation func(ctx context.Context, req *Request[Req], stream *ServerStream[Res]) error,
	opts ...HandlerOption,
) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt.applyToHandler(cfg)
	}
	impl := newChain(cfg.interceptors).WrapStreamingHandler(func(ctx context.Context, conn StreamingHandlerConn) error {
		msg, err := receiveUnaryRequest[Req](conn)
		if err != nil {
			return err
		}
		req := &Request[Req]{Msg: msg, spec: conn.Spec(), peer: conn.Peer(), header: conn.RequestHeader()}
		return implementation(ctx, req, &ServerStream[Res]{conn: conn})
	})
	return newHandler(procedure, StreamTypeServer, cfg, impl)
}

// NewBidiStreamHandler builds a Handler for a full-duplex procedure.
func NewBidiStreamHandler[Req, Res any](
	procedure string,
	implementation func(ctx context.Context, stream *BidiStream[Req, Res]) error,
	opts ...HandlerOption,
) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt.applyToHandler(cfg)
	}
	impl := newChain(cfg.interceptors).WrapStreamingHandler(func(ctx context.Context, conn StreamingHandlerConn) error {
		return implementation(ctx, &BidiStream[Req, Res]{conn: conn})
	})
	return newHandler(procedure, StreamTypeBidi, cfg, impl)
}

// ServeHTTP implements spec §4.8's per-request algorithm: validate
// content type, negotiate compression, parse the deadline, inject
// extensions, run the implementation with panic recovery, then close
// the connection with the resulting Status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeUnimplementedTrailersOnly(w, "unsupported method "+r.Method)
		return
	}

	codecName, ok := codecNameFromContentType(r.Header.Get("Content-Type"))
	if !ok {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	codec, ok := h.codecs.Get(codecName)
	if !ok {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	requestEncoding := r.Header.Get("Grpc-Encoding")
	if requestEncoding != "" && requestEncoding != CompressionIdentity {
		if _, ok := h.compressionPools.Get(requestEncoding); !ok {
			w.Header().Set("Grpc-Accept-Encoding", h.compressionPools.AcceptEncodingValue())
			w.Header().Set("Content-Type", contentTypeForCodec(codec.Name()))
			w.Header().Set("Grpc-Status", itoa(int(CodeUnimplemented)))
			w.Header().Set("Grpc-Message", percentEncode("unknown compression \""+requestEncoding+"\""))
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	responseEncoding := negotiateResponseEncoding(h.compressionPools, r.Header.Get("Grpc-Accept-Encoding"))

	ctx, cancel, err := contextWithTimeoutHeader(r.Context(), r.Header.Get("Grpc-Timeout"))
	defer cancel()
	conn := newGRPCHandlerConn(
		w, r, h.spec, codec, h.compressionPools, requestEncoding, responseEncoding,
		h.bufferPool, h.config.readMaxBytes, h.config.sendMaxBytes, h.config.compressMinBytes,
	)
	if err != nil {
		_ = conn.Close(Errorf(CodeInternal, "malformed grpc-timeout: %v", err))
		return
	}

	service, method := splitProcedure(h.spec.Procedure)
	ctx = context.WithValue(ctx, peerContextKey{}, conn.Peer())
	ctx = context.WithValue(ctx, grpcMethodContextKey{}, GrpcMethod{Service: service, Method: method})

	runErr := h.invoke(ctx, conn)
	_ = conn.Close(runErr)
}

// invoke runs the implementation with panic recovery, converting an
// unrecovered panic into CodeInternal (spec §4.9, "Server panics
// ... map to INTERNAL").
func (h *Handler) invoke(ctx context.Context, conn StreamingHandlerConn) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Errorf(CodeInternal, "panic: %v", p)
		}
	}()
	return h.implementation(ctx, conn)
}

func splitProcedure(procedure string) (service, method string) {
	trimmed := strings.TrimPrefix(procedure, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// negotiateResponseEncoding picks the first compressor both sides
// support from the client's Grpc-Accept-Encoding, defaulting to
// identity when nothing matches (spec §4.7/§4.8 compression
// negotiation).
func negotiateResponseEncoding(pools *readOnlyCompressionPools, acceptEncoding string) string {
	for _, name := range splitCSV(acceptEncoding) {
		if name == CompressionIdentity {
			return CompressionIdentity
		}
		if _, ok := pools.Get(name); ok && name != "" {
			return name
		}
	}
	return CompressionIdentity
}
