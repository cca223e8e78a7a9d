package rpcgo

import "context"

// UnaryFunc is the Service abstraction specialized for a single
// request/response call (spec §3, Service: "call(Request) ->
// Future<Response>"). Futures are modeled with plain blocking calls
// here: Go's goroutines and channels make an explicit Future type
// unnecessary, and every suspension point (§5) is already expressed as
// a blocking call that the scheduler multiplexes across goroutines.
type UnaryFunc func(ctx context.Context, req AnyRequest) (AnyResponse, error)

// StreamingClientFunc constructs a StreamingClientConn for a call,
// analogous to UnaryFunc but for the three streaming shapes.
type StreamingClientFunc func(ctx context.Context, spec Spec) StreamingClientConn

// StreamingHandlerFunc implements a streaming RPC against a
// StreamingHandlerConn, returning the terminal Status as a plain error.
type StreamingHandlerFunc func(ctx context.Context, conn StreamingHandlerConn) error

// Interceptor wraps a Service to observe or mutate requests and
// responses, or to short-circuit with a Status, without the wrapped
// service's knowledge (spec §3, Service: "Interceptors are services
// wrapping services").
//
// Reserved headers (spec §4.6): on unary calls and on the handler side,
// the runtime writes its own reserved entries and filters reserved
// names out of the metadata interceptors set, so an interceptor cannot
// remove or overwrite them. A streaming-client interceptor receives the
// StreamingClientConn after the runtime has filled in its request
// headers; RequestHeader returns that live map, and changes made there
// to reserved names are sent as they are.
type Interceptor interface {
	WrapUnary(UnaryFunc) UnaryFunc
	WrapStreamingClient(StreamingClientFunc) StreamingClientFunc
	WrapStreamingHandler(StreamingHandlerFunc) StreamingHandlerFunc
}

// UnaryInterceptorFunc adapts a plain function into an Interceptor that
// only touches unary calls, leaving streaming calls untouched.
type UnaryInterceptorFunc func(UnaryFunc) UnaryFunc

func (f UnaryInterceptorFunc) WrapUnary(next UnaryFunc) UnaryFunc { return f(next) }
func (f UnaryInterceptorFunc) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return next
}
func (f UnaryInterceptorFunc) WrapStreamingHandler(next StreamingHandlerFunc) StreamingHandlerFunc {
	return next
}

// chain composes multiple interceptors into one. The first interceptor
// supplied is the outermost layer: it acts first on the request and
// last on the response, matching the "onion" composition documented on
// WithInterceptors.
type chain struct {
	interceptors []Interceptor
}

func newChain(interceptors []Interceptor) *chain {
	return &chain{interceptors: interceptors}
}

func (c *chain) WrapUnary(next UnaryFunc) UnaryFunc {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		next = c.interceptors[i].WrapUnary(next)
	}
	return next
}

func (c *chain) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		next = c.interceptors[i].WrapStreamingClient(next)
	}
	return next
}

func (c *chain) WrapStreamingHandler(next StreamingHandlerFunc) StreamingHandlerFunc {
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		next = c.interceptors[i].WrapStreamingHandler(next)
	}
	return next
}

// mergeHeaders copies src into dst without overwriting entries dst
// already has a value for -- used to fold a handler's Response
// header/trailer into the ones the conn already manages.
func mergeHeaders(dst, src map[string][]string) {
	for k, vs := range src {
		dst[k] = append(dst[k], vs...)
	}
}
