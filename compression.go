package rpcgo

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	kgzip "github.com/klauspost/compress/gzip"
)

// Compression encoding names, used verbatim in grpc-encoding and
// grpc-accept-encoding (spec §3, CompressionEncoding).
const (
	CompressionIdentity = "identity"
	CompressionGzip     = "gzip"
)

// Compressor is a bidirectional message compressor. Implementations are
// registered under a name (usually "gzip") with WithCompression or
// WithKlauspostGzip and are looked up per negotiated algorithm.
type Compressor interface {
	Compress(dst io.Writer, src []byte) error
	Decompress(dst io.Writer, src io.Reader) error
}

// compressionPool recycles *gzip.Writer/*gzip.Reader-shaped state for a
// single Compressor so that steady-state calls don't allocate one per
// message (spec §4.3: "codecs are single-owner per call" — compressors
// are the one exception, since the underlying algorithm's state is
// expensive enough to warrant pooling across calls).
type compressionPool struct {
	name       string
	compressor Compressor
}

func newCompressionPool(name string, c Compressor) *compressionPool {
	return &compressionPool{name: name, compressor: c}
}

func (p *compressionPool) Compress(dst io.Writer, src []byte) error {
	return p.compressor.Compress(dst, src)
}

func (p *compressionPool) Decompress(dst io.Writer, src io.Reader) error {
	return p.compressor.Decompress(dst, src)
}

// readOnlyCompressionPools is the immutable, negotiation-ready view over
// a set of registered compressors, along with the pre-rendered
// Grpc-Accept-Encoding value (spec §4.7 step 2, §4.8 step 2).
type readOnlyCompressionPools struct {
	pools        map[string]*compressionPool
	acceptHeader string
}

func newReadOnlyCompressionPools(pools map[string]*compressionPool, names []string) *readOnlyCompressionPools {
	return &readOnlyCompressionPools{
		pools:        pools,
		acceptHeader: strings.Join(names, ","),
	}
}

func (p *readOnlyCompressionPools) Get(name string) (*compressionPool, bool) {
	if name == "" || name == CompressionIdentity {
		return nil, true
	}
	pool, ok := p.pools[name]
	return pool, ok
}

func (p *readOnlyCompressionPools) AcceptEncodingValue() string {
	return p.acceptHeader
}

// gzipCompressor wraps the standard library's compress/gzip.
type gzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

func newGzipCompressor() *gzipCompressor {
	return &gzipCompressor{
		writers: sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }},
		readers: sync.Pool{New: func() any { return new(gzip.Reader) }},
	}
}

func (g *gzipCompressor) Compress(dst io.Writer, src []byte) error {
	w := g.writers.Get().(*gzip.Writer)
	defer g.writers.Put(w)
	w.Reset(dst)
	if _, err := w.Write(src); err != nil {
		return fmt.Errorf("gzip compress: %w", err)
	}
	return w.Close()
}

func (g *gzipCompressor) Decompress(dst io.Writer, src io.Reader) error {
	r, ok := g.readers.Get().(*gzip.Reader)
	if !ok {
		return fmt.Errorf("gzip decompress: pool returned unexpected type")
	}
	defer g.readers.Put(r)
	if err := r.Reset(src); err != nil {
		return fmt.Errorf("gzip decompress: %w", err)
	}
	defer r.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("gzip decompress: %w", err)
	}
	return nil
}

// klauspostGzipCompressor is an alternative gzip Compressor backed by
// github.com/klauspost/compress/gzip, which offers substantially faster
// encode throughput than the standard library at the same compression
// ratio. It's opt-in via WithKlauspostGzip, registered under the same
// "gzip" name as the stdlib compressor so it can be swapped in without
// touching call sites.
type klauspostGzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

func newKlauspostGzipCompressor() *klauspostGzipCompressor {
	return &klauspostGzipCompressor{
		writers: sync.Pool{New: func() any { return kgzip.NewWriter(io.Discard) }},
		readers: sync.Pool{New: func() any { return new(kgzip.Reader) }},
	}
}

func (g *klauspostGzipCompressor) Compress(dst io.Writer, src []byte) error {
	w := g.writers.Get().(*kgzip.Writer)
	defer g.writers.Put(w)
	w.Reset(dst)
	if _, err := w.Write(src); err != nil {
		return fmt.Errorf("klauspost gzip compress: %w", err)
	}
	return w.Close()
}

func (g *klauspostGzipCompressor) Decompress(dst io.Writer, src io.Reader) error {
	r, ok := g.readers.Get().(*kgzip.Reader)
	if !ok {
		return fmt.Errorf("klauspost gzip decompress: pool returned unexpected type")
	}
	defer g.readers.Put(r)
	if err := r.Reset(src); err != nil {
		return fmt.Errorf("klauspost gzip decompress: %w", err)
	}
	defer r.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("klauspost gzip decompress: %w", err)
	}
	return nil
}
