package rpcgo

import (
	"net/http"

	"github.com/rpcgo/rpcgo/internal/bufferpool"
)

// grpcHandlerConn is the server-side StreamingHandlerConn for the gRPC
// protocol (spec §4.8). It writes response headers on the first Send,
// and on Close folds the terminal Status into HTTP trailers, or into a
// trailers-only response when the call failed before anything was sent
// (DESIGN.md, headers-then-fail).
type grpcHandlerConn struct {
	spec   Spec
	peer   Peer
	reqHdr http.Header

	respWriter  http.ResponseWriter
	respHeader  http.Header
	respTrailer http.Header
	headersSent bool

	reader *envelopeReader
	writer *envelopeWriter

	responseCodecName string
	responseEncoding  string
}

func newGRPCHandlerConn(
	w http.ResponseWriter,
	r *http.Request,
	spec Spec,
	codec Codec,
	compressionPools *readOnlyCompressionPools,
	requestEncoding string,
	responseEncoding string,
	bufferPool *bufferpool.Pool,
	readMaxBytes int,
	sendMaxBytes int,
	compressMinBytes int,
) *grpcHandlerConn {
	var respCompressionPool *compressionPool
	if responseEncoding != "" && responseEncoding != CompressionIdentity {
		respCompressionPool, _ = compressionPools.Get(responseEncoding)
	}
	return &grpcHandlerConn{
		spec:              spec,
		peer:              newPeerFromRequest(r),
		reqHdr:            r.Header,
		respWriter:        w,
		respHeader:        make(http.Header),
		respTrailer:       make(http.Header),
		responseCodecName: codec.Name(),
		responseEncoding:  responseEncoding,
		reader: &envelopeReader{
			src:                r.Body,
			codec:              codec,
			bufferPool:         bufferPool,
			compressionPool:    compressionPools,
			readMaxBytes:       readMaxBytes,
			negotiatedEncoding: requestEncoding,
		},
		writer: &envelopeWriter{
			codec:            codec,
			bufferPool:       bufferPool,
			compressionPool:  respCompressionPool,
			compressMinBytes: compressMinBytes,
			sendMaxBytes:     sendMaxBytes,
		},
	}
}

func (c *grpcHandlerConn) Spec() Spec               { return c.spec }
func (c *grpcHandlerConn) Peer() Peer                { return c.peer }
func (c *grpcHandlerConn) RequestHeader() http.Header  { return c.reqHdr }
func (c *grpcHandlerConn) ResponseHeader() http.Header { return c.respHeader }
func (c *grpcHandlerConn) ResponseTrailer() http.Header {
	return c.respTrailer
}

func (c *grpcHandlerConn) Receive(msg any) error {
	return c.reader.Unmarshal(msg)
}

func (c *grpcHandlerConn) Send(msg any) error {
	c.ensureHeadersSent()
	if err := c.writer.Marshal(msg); err != nil {
		return err
	}
	if f, ok := c.respWriter.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// ensureHeadersSent writes the response headers exactly once, pre-
// declaring the trailer names the runtime will set in Close (spec §6.1:
// "grpc-status, grpc-message, grpc-status-details-bin, plus any user
// trailers").
func (c *grpcHandlerConn) ensureHeadersSent() {
	if c.headersSent {
		return
	}
	c.headersSent = true
	h := c.respWriter.Header()
	h.Set("Content-Type", contentTypeForCodec(c.responseCodecName))
	if c.responseEncoding != "" && c.responseEncoding != CompressionIdentity {
		h.Set("Grpc-Encoding", c.responseEncoding)
	}
	mergeIntoHeader(h, metadataFromHeader(c.respHeader))
	h.Add("Trailer", "Grpc-Status")
	h.Add("Trailer", "Grpc-Message")
	h.Add("Trailer", "Grpc-Status-Details-Bin")
	for k := range c.respTrailer {
		h.Add("Trailer", k)
	}
	c.respWriter.WriteHeader(http.StatusOK)
}

// Close finalizes the exchange. If the call failed before anything was
// sent, it writes a trailers-only response: HTTP 200 with the status,
// response metadata and trailers all in one header block and no DATA
// frames. Otherwise it ensures headers were sent, then writes the
// terminal Status into trailers. Non-reserved trailer names are written
// with http.TrailerPrefix, so names added after the headers went out
// are still delivered.
func (c *grpcHandlerConn) Close(err error) error {
	status := errorOrNil(err)
	if !c.headersSent && status != nil {
		c.headersSent = true
		h := c.respWriter.Header()
		h.Set("Content-Type", contentTypeForCodec(c.responseCodecName))
		mergeIntoHeader(h, metadataFromHeader(c.respHeader))
		mergeIntoHeader(h, metadataFromHeader(c.respTrailer))
		for k, vs := range statusToTrailer(status) {
			h[k] = vs
		}
		c.respWriter.WriteHeader(http.StatusOK)
		return nil
	}
	c.ensureHeadersSent()
	trailer := statusToTrailer(status)
	h := c.respWriter.Header()
	for k, vs := range c.respTrailer {
		if isReservedHeader(k) {
			continue
		}
		for _, v := range vs {
			h.Add(http.TrailerPrefix+k, v)
		}
	}
	for k, vs := range trailer {
		for _, v := range vs {
			if isReservedHeader(k) {
				h.Set(k, v)
			} else {
				h.Add(http.TrailerPrefix+k, v)
			}
		}
	}
	if f, ok := c.respWriter.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func errorOrNil(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(CodeUnknown, err)
}

var _ handlerConnCloser = (*grpcHandlerConn)(nil)
