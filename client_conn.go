package rpcgo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rpcgo/rpcgo/internal/bufferpool"
)

// grpcClientConn is the client-side StreamingClientConn for the gRPC
// protocol. It owns a duplexHTTPCall and lazily starts the HTTP round
// trip on the first Send, matching the teacher's "headers go out with
// the first frame" behavior.
type grpcClientConn struct {
	ctx    context.Context
	cancel context.CancelFunc
	spec   Spec
	doer   HTTPClient
	url    string
	header http.Header

	codec            Codec
	bufferPool       *bufferpool.Pool
	compressionPools *readOnlyCompressionPools
	requestEncoding  string
	compressMinBytes int
	sendMaxBytes     int
	readMaxBytes     int

	call   *duplexHTTPCall
	writer *envelopeWriter

	once           sync.Once
	response       *http.Response
	responseErr    *Error
	responseHeader http.Header
	reader         *envelopeReader
}

func newGRPCClientConn(
	ctx context.Context,
	doer HTTPClient,
	url string,
	spec Spec,
	header http.Header,
	codec Codec,
	requestEncoding string,
	compressionPools *readOnlyCompressionPools,
	bufferPool *bufferpool.Pool,
	compressMinBytes int,
	sendMaxBytes int,
	readMaxBytes int,
	cancel context.CancelFunc,
) *grpcClientConn {
	return &grpcClientConn{
		ctx:              ctx,
		cancel:           cancel,
		spec:             spec,
		doer:             doer,
		url:              url,
		header:           header,
		codec:            codec,
		bufferPool:       bufferPool,
		compressionPools: compressionPools,
		requestEncoding:  requestEncoding,
		compressMinBytes: compressMinBytes,
		sendMaxBytes:     sendMaxBytes,
		readMaxBytes:     readMaxBytes,
		responseHeader:   make(http.Header),
	}
}

func (c *grpcClientConn) Spec() Spec               { return c.spec }
func (c *grpcClientConn) Peer() Peer                { return newPeerFromURL(c.url) }
func (c *grpcClientConn) RequestHeader() http.Header { return c.header }

func (c *grpcClientConn) Send(msg any) error {
	if c.call == nil {
		c.startRequest()
	}
	return c.writer.Marshal(msg)
}

func (c *grpcClientConn) startRequest() {
	c.call = newDuplexHTTPCall(c.ctx, c.doer, c.url, http.MethodPost, c.header)
	var reqCompressionPool *compressionPool
	if c.requestEncoding != "" && c.requestEncoding != CompressionIdentity {
		reqCompressionPool, _ = c.compressionPools.Get(c.requestEncoding)
	}
	c.writer = &envelopeWriter{
		dst:              c.call,
		codec:            c.codec,
		bufferPool:       c.bufferPool,
		compressionPool:  reqCompressionPool,
		compressMinBytes: c.compressMinBytes,
		sendMaxBytes:     c.sendMaxBytes,
	}
	c.call.Send()
}

// CloseRequest half-closes the request body, letting a server-streaming
// or unary handler observe end-of-input.
func (c *grpcClientConn) CloseRequest() error {
	if c.call == nil {
		c.startRequest() // unary calls with zero request messages are invalid, but don't hang the caller
	}
	return c.call.CloseWrite()
}

// ensureResponse blocks until response headers arrive (spec §4.7's
// suspension point "awaiting response headers") and classifies the
// outcome: transport failure, trailers-only error, or a normal
// streamed response.
func (c *grpcClientConn) ensureResponse() {
	c.once.Do(func() {
		if c.call == nil {
			c.startRequest()
		}
		resp, err := c.call.BlockUntilResponseReady()
		if err != nil {
			c.responseErr = errorFromStreamClose(err)
			return
		}
		c.response = resp
		mergeIntoHeader(c.responseHeader, metadataFromHeader(resp.Header))

		if resp.StatusCode != http.StatusOK {
			c.responseErr = errorFromHTTPStatus(resp.StatusCode)
			return
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			if name, ok := codecNameFromContentType(ct); !ok || name != c.codec.Name() {
				c.responseErr = Errorf(CodeInternal, "unexpected response content-type %q", ct)
				return
			}
		}
		if status := resp.Header.Get("Grpc-Status"); status != "" {
			// Trailers-only: the server closed the stream without
			// sending any message frames.
			c.responseErr = errorFromTrailer(resp.Header)
			return
		}
		c.reader = &envelopeReader{
			src:                resp.Body,
			codec:              c.codec,
			bufferPool:         c.bufferPool,
			compressionPool:    c.compressionPools,
			readMaxBytes:       c.readMaxBytes,
			negotiatedEncoding: resp.Header.Get("Grpc-Encoding"),
		}
	})
}

func (c *grpcClientConn) Receive(msg any) error {
	c.ensureResponse()
	if c.responseErr != nil {
		return c.responseErr
	}
	err := c.reader.Unmarshal(msg)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		if trailerErr := errorFromTrailer(c.response.Trailer); trailerErr != nil {
			return trailerErr
		}
		return io.EOF
	}
	return err
}

func (c *grpcClientConn) ResponseHeader() http.Header { return c.responseHeader }

func (c *grpcClientConn) ResponseTrailer() http.Header {
	if c.response == nil {
		return make(http.Header)
	}
	return c.response.Trailer
}

func (c *grpcClientConn) CloseResponse() error {
	defer c.cancel()
	if c.call == nil {
		return nil
	}
	if err := c.call.CloseRead(); err != nil {
		if e, ok := AsError(err); ok {
			return e
		}
		return errorFromStreamClose(err)
	}
	return nil
}

var _ StreamingClientConn = (*grpcClientConn)(nil)
