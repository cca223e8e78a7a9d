package rpcgo

import "net/http"

// StreamingHandlerConn is the server's view of a bidirectional message
// exchange (spec §3, Envelope; spec §4.8). Like http.ResponseWriter,
// implementations write response headers to the network on the first
// call to Send; later header mutations are no-ops. Handlers may mutate
// response trailers at any time before returning. When the client has
// finished sending, Receive returns io.EOF.
type StreamingHandlerConn interface {
	Spec() Spec
	Peer() Peer

	Receive(msg any) error
	RequestHeader() http.Header

	Send(msg any) error
	ResponseHeader() http.Header
	ResponseTrailer() http.Header
}

// StreamingClientConn is the client's view of a bidirectional message
// exchange. StreamingClientConn implementations write request headers
// to the network on the first call to Send.
type StreamingClientConn interface {
	Spec() Spec
	Peer() Peer

	Send(msg any) error
	RequestHeader() http.Header
	CloseRequest() error

	Receive(msg any) error
	ResponseHeader() http.Header
	ResponseTrailer() http.Header
	CloseResponse() error
}

// handlerConnCloser extends StreamingHandlerConn with the method the
// adapter uses to terminate the exchange and (for an error) fold the
// Status into trailers or a trailers-only response (spec §4.8 steps 7-8).
type handlerConnCloser interface {
	StreamingHandlerConn
	Close(err error) error
}
