package rpcgo

import "time"

// clientConfig and handlerConfig hold a Client's/Handler's resolved
// options (spec §3, Service: "construction-time configuration").
type clientConfig struct {
	codecName        string
	codecs           map[string]Codec
	requestEncoding  string
	compressors      map[string]*compressionPool
	compressionNames []string
	compressMinBytes int
	sendMaxBytes     int
	readMaxBytes     int
	interceptors     []Interceptor
	timeout          time.Duration
}

type handlerConfig struct {
	codecs           map[string]Codec
	compressors      map[string]*compressionPool
	compressionNames []string
	compressMinBytes int
	sendMaxBytes     int
	readMaxBytes     int
	interceptors     []Interceptor
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		codecName:    protoName,
		codecs:       map[string]Codec{protoName: protoCodec{}, jsonName: newJSONCodec()},
		compressors:  map[string]*compressionPool{CompressionGzip: newCompressionPool(CompressionGzip, newGzipCompressor())},
		readMaxBytes: 4 << 20, // 4 MiB
	}
}

func defaultHandlerConfig() *handlerConfig {
	return &handlerConfig{
		codecs:       map[string]Codec{protoName: protoCodec{}, jsonName: newJSONCodec()},
		compressors:  map[string]*compressionPool{CompressionGzip: newCompressionPool(CompressionGzip, newGzipCompressor())},
		readMaxBytes: 4 << 20, // 4 MiB
	}
}

func (c *clientConfig) compressionNameList() []string {
	names := make([]string, 0, len(c.compressors))
	for name := range c.compressors {
		names = append(names, name)
	}
	return names
}

func (c *handlerConfig) compressionNameList() []string {
	names := make([]string, 0, len(c.compressors))
	for name := range c.compressors {
		names = append(names, name)
	}
	return names
}

// Option configures both a Client and a Handler; it's the union most
// options belong to (spec's "same onion composition on both sides").
type Option interface {
	applyToClient(*clientConfig)
	applyToHandler(*handlerConfig)
}

// ClientOption configures a Client only.
type ClientOption interface {
	applyToClient(*clientConfig)
}

// HandlerOption configures a Handler only.
type HandlerOption interface {
	applyToHandler(*handlerConfig)
}

type codecOption struct {
	name  string
	codec Codec
}

func (o codecOption) applyToClient(c *clientConfig) {
	c.codecName = o.name
	c.codecs[o.name] = o.codec
}
func (o codecOption) applyToHandler(h *handlerConfig) { h.codecs[o.name] = o.codec }

// WithCodec registers a Codec under name, and (client-side) selects it
// for outgoing requests.
func WithCodec(name string, codec Codec) Option { return codecOption{name: name, codec: codec} }

// WithProtoJSON selects protojson as the client's request codec; a
// Handler always accepts it regardless of this option, since it's
// registered by default.
func WithProtoJSON() ClientOption {
	return codecOption{name: jsonName, codec: newJSONCodec()}
}

type compressionOption struct {
	name       string
	compressor Compressor
}

func (o compressionOption) applyToClient(c *clientConfig) {
	c.compressors[o.name] = newCompressionPool(o.name, o.compressor)
}
func (o compressionOption) applyToHandler(h *handlerConfig) {
	h.compressors[o.name] = newCompressionPool(o.name, o.compressor)
}

// WithCompression registers a Compressor under name, available for
// negotiation on either side.
func WithCompression(name string, compressor Compressor) Option {
	return compressionOption{name: name, compressor: compressor}
}

// WithKlauspostGzip swaps the default standard-library gzip compressor
// for github.com/klauspost/compress/gzip, registered under the same
// "gzip" name for drop-in use.
func WithKlauspostGzip() Option {
	return compressionOption{name: CompressionGzip, compressor: newKlauspostGzipCompressor()}
}

type requestCompressionOption struct{ name string }

func (o requestCompressionOption) applyToClient(c *clientConfig) { c.requestEncoding = o.name }

// WithRequestCompression selects the compression algorithm a Client
// applies to outgoing messages. The zero value leaves requests
// uncompressed.
func WithRequestCompression(name string) ClientOption {
	return requestCompressionOption{name: name}
}

type compressMinBytesOption struct{ n int }

func (o compressMinBytesOption) applyToClient(c *clientConfig)  { c.compressMinBytes = o.n }
func (o compressMinBytesOption) applyToHandler(h *handlerConfig) { h.compressMinBytes = o.n }

// WithCompressMinBytes sets the minimum marshaled message size before
// compression is attempted; smaller messages are sent uncompressed
// since compression overhead would outweigh the savings.
func WithCompressMinBytes(n int) Option { return compressMinBytesOption{n: n} }

type sendMaxBytesOption struct{ n int }

func (o sendMaxBytesOption) applyToClient(c *clientConfig)  { c.sendMaxBytes = o.n }
func (o sendMaxBytesOption) applyToHandler(h *handlerConfig) { h.sendMaxBytes = o.n }

// WithSendMaxBytes bounds the compressed wire size of any outgoing
// message (spec §4.3 step 3, CodeOutOfRange on violation).
func WithSendMaxBytes(n int) Option { return sendMaxBytesOption{n: n} }

type readMaxBytesOption struct{ n int }

func (o readMaxBytesOption) applyToClient(c *clientConfig)  { c.readMaxBytes = o.n }
func (o readMaxBytesOption) applyToHandler(h *handlerConfig) { h.readMaxBytes = o.n }

// WithReadMaxBytes bounds the declared length of any incoming frame
// (4 MiB by default; 0 or less removes the bound); an oversized frame
// is rejected without the payload ever being allocated (spec §8
// scenario 5).
func WithReadMaxBytes(n int) Option { return readMaxBytesOption{n: n} }

type interceptorsOption struct{ interceptors []Interceptor }

func (o interceptorsOption) applyToClient(c *clientConfig) {
	c.interceptors = append(c.interceptors, o.interceptors...)
}
func (o interceptorsOption) applyToHandler(h *handlerConfig) {
	h.interceptors = append(h.interceptors, o.interceptors...)
}

// WithInterceptors appends Interceptors, in order, inside any layers
// added by earlier WithInterceptors options -- the first interceptor
// ever supplied observes a call first and last, like wrapping it in an
// onion (spec §3, Service: "Interceptors are services wrapping
// services").
func WithInterceptors(interceptors ...Interceptor) Option {
	return interceptorsOption{interceptors: interceptors}
}

type timeoutOption struct{ d time.Duration }

func (o timeoutOption) applyToClient(c *clientConfig) { c.timeout = o.d }

// WithTimeout sets the default grpc-timeout a Client attaches to every
// call that doesn't already carry a context deadline.
func WithTimeout(d time.Duration) ClientOption { return timeoutOption{d: d} }
