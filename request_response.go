package rpcgo

import (
	"crypto/x509"
	"net/http"
	"net/url"
)

// StreamType describes which side(s) of an RPC send more than one
// message (spec §3, four call shapes).
type StreamType uint8

const (
	StreamTypeUnary  StreamType = 0b00
	StreamTypeClient StreamType = 0b01
	StreamTypeServer StreamType = 0b10
	StreamTypeBidi              = StreamTypeClient | StreamTypeServer
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeUnary:
		return "unary"
	case StreamTypeClient:
		return "client_streaming"
	case StreamTypeServer:
		return "server_streaming"
	case StreamTypeBidi:
		return "bidi_streaming"
	default:
		return "unknown"
	}
}

// Spec describes a client call or handler invocation (spec §3, Service
// abstraction).
type Spec struct {
	StreamType StreamType
	Procedure  string // e.g. "/acme.foo.v1.FooService/Bar"
	IsClient   bool
}

// Peer describes the other party to an RPC. Certs is populated from the
// peer's verified certificate chain when the underlying connection is
// TLS (spec §4.8, "Extension injection": "connection info (... peer
// certs if TLS)"); it's nil otherwise.
type Peer struct {
	Addr  string
	Certs []*x509.Certificate
}

func newPeerFromRequest(r *http.Request) Peer {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return Peer{Addr: r.RemoteAddr, Certs: r.TLS.PeerCertificates}
	}
	return Peer{Addr: r.RemoteAddr}
}

// newPeerFromURL approximates a client-side Peer from the dial target,
// since the client's *http.Client doesn't expose the negotiated
// connection the way a server's *http.Request does.
func newPeerFromURL(rawURL string) Peer {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Peer{}
	}
	return Peer{Addr: u.Host}
}

// Request wraps a generated request message with metadata, the call
// Spec, and (server-side) connection info (spec §3, Request<T>/Response<T>).
type Request[T any] struct {
	Msg *T

	spec   Spec
	peer   Peer
	header http.Header
}

// NewRequest wraps a generated request message for sending.
func NewRequest[T any](msg *T) *Request[T] {
	return &Request[T]{Msg: msg}
}

func (r *Request[_]) Any() any      { return r.Msg }
func (r *Request[_]) Spec() Spec    { return r.spec }
func (r *Request[_]) Peer() Peer    { return r.peer }
func (r *Request[_]) internalOnly() {}

// Header returns the HTTP headers that will carry (or carried) this
// request's metadata.
func (r *Request[_]) Header() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

// Metadata returns the user-visible metadata on this request, reserved
// headers filtered out (spec §3, Metadata filtering).
func (r *Request[_]) Metadata() Metadata {
	return metadataFromHeader(r.Header())
}

// AnyRequest is the common method set of every Request[T], used by
// interceptors that don't know the concrete message type.
type AnyRequest interface {
	Any() any
	Spec() Spec
	Peer() Peer
	Header() http.Header

	internalOnly()
}

// Response wraps a generated response message with headers and
// trailers.
type Response[T any] struct {
	Msg *T

	header  http.Header
	trailer http.Header
}

// NewResponse wraps a generated response message for returning from a
// handler.
func NewResponse[T any](msg *T) *Response[T] {
	return &Response[T]{Msg: msg}
}

func (r *Response[_]) Any() any      { return r.Msg }
func (r *Response[_]) internalOnly() {}

func (r *Response[_]) Header() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

func (r *Response[_]) Trailer() http.Header {
	if r.trailer == nil {
		r.trailer = make(http.Header)
	}
	return r.trailer
}

// AnyResponse is the common method set of every Response[T].
type AnyResponse interface {
	Any() any
	Header() http.Header
	Trailer() http.Header

	internalOnly()
}

// GrpcMethod identifies the service and method of the current call. The
// server engine injects one into every handler's request extensions
// (spec §4.8, "Extension injection") so middleware can identify the
// call without re-parsing the procedure path.
type GrpcMethod struct {
	Service string
	Method  string
}

// extension context keys (spec §4.5, "extensions (a heterogeneous
// type-keyed map for out-of-band context...)"). context.Context already
// is such a map; these unexported types are the compile-time-unique tags
// spec §9's Design Notes call for.
type (
	peerContextKey       struct{}
	grpcMethodContextKey struct{}
	deadlineContextKey   struct{}
)
