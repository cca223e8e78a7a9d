package rpcgo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rpcgo/rpcgo/internal/bufferpool"
)

// envelopeFlags is the one-byte flag field that prefixes every frame
// (spec §3, Frame; spec §6.1). Only bit 0 is defined.
type envelopeFlags uint8

const flagCompressed envelopeFlags = 0b00000001

const envelopePrefixLength = 5 // 1 byte flags + 4 bytes big-endian length

// errShortRead distinguishes "the stream ended exactly between frames"
// (clean end of message sequence, spec §4.4 ReadingHeader -> ExpectingTrailers)
// from "the stream ended mid-frame" (protocol error, spec §4.3: "An error
// mid-frame is INTERNAL or DATA_LOSS depending on whether the length
// prefix has been consumed").
var errShortRead = errors.New("rpcgo: truncated frame")

// envelopeWriter turns typed messages into length-prefixed, optionally
// compressed frames (spec §4.3, encode side).
type envelopeWriter struct {
	dst              io.Writer
	codec            Codec
	bufferPool       *bufferpool.Pool
	compressionPool  *compressionPool
	compressMinBytes int
	sendMaxBytes     int
}

// Marshal implements the encode-side framing algorithm: encode, maybe
// compress, size-check, then write the 5-byte header and payload.
func (w *envelopeWriter) Marshal(msg any) *Error {
	raw, err := w.codec.Marshal(msg)
	if err != nil {
		return NewError(CodeInternal, fmt.Errorf("marshal message: %w", err))
	}

	flags := envelopeFlags(0)
	payload := raw
	if w.compressionPool != nil && len(raw) >= w.compressMinBytes {
		compressed := w.bufferPool.Get()
		defer w.bufferPool.Put(compressed)
		if cErr := w.compressionPool.Compress(compressed, raw); cErr != nil {
			return NewError(CodeInternal, fmt.Errorf("compress message: %w", cErr))
		}
		payload = compressed.Bytes()
		flags |= flagCompressed
	}

	if w.sendMaxBytes > 0 && len(payload) > w.sendMaxBytes {
		return Errorf(CodeOutOfRange, "message size %d exceeds sendMaxBytes %d", len(payload), w.sendMaxBytes)
	}

	var prefix [envelopePrefixLength]byte
	prefix[0] = byte(flags)
	binary.BigEndian.PutUint32(prefix[1:], uint32(len(payload)))
	if _, err := w.dst.Write(prefix[:]); err != nil {
		return NewError(CodeUnavailable, fmt.Errorf("write frame header: %w", err))
	}
	if _, err := w.dst.Write(payload); err != nil {
		return NewError(CodeUnavailable, fmt.Errorf("write frame payload: %w", err))
	}
	return nil
}

// envelopeReader turns a byte stream into a sequence of typed messages
// (spec §4.3, decode side; spec §4.4, ReadingHeader/ReadingBody states).
type envelopeReader struct {
	src                io.Reader
	codec              Codec
	bufferPool         *bufferpool.Pool
	compressionPool    *readOnlyCompressionPools
	readMaxBytes       int
	negotiatedEncoding string // the algorithm named in the peer's Grpc-Encoding header, if any
}

// Unmarshal decodes exactly one frame into msg. It returns io.EOF
// (unwrapped, checkable with errors.Is) when the stream ends cleanly
// between frames -- the ReadingHeader -> ExpectingTrailers transition in
// spec §4.4 -- and an *Error otherwise.
func (r *envelopeReader) Unmarshal(msg any) error {
	var prefix [envelopePrefixLength]byte
	n, err := io.ReadFull(r.src, prefix[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return io.EOF
	case err != nil:
		return NewError(CodeInternal, fmt.Errorf("read frame header: %w", errShortRead))
	}

	flags := envelopeFlags(prefix[0])
	length := binary.BigEndian.Uint32(prefix[1:])

	if r.readMaxBytes > 0 && int64(length) > int64(r.readMaxBytes) {
		// Fail without allocating a buffer for the oversized payload (spec
		// §4.3 step 2, spec §8 scenario 5: "the server never allocates the
		// 2048-byte payload"). The declared bytes are read into io.Discard,
		// so none of them is buffered, decompressed or decoded.
		discarded, _ := io.CopyN(io.Discard, r.src, int64(length))
		_ = discarded
		return Errorf(CodeOutOfRange, "message size %d exceeds readMaxBytes %d", length, r.readMaxBytes)
	}

	payload := r.bufferPool.Get()
	defer r.bufferPool.Put(payload)
	payload.Grow(int(length))
	if _, err := io.CopyN(payload, r.src, int64(length)); err != nil {
		return NewError(CodeDataLoss, fmt.Errorf("read frame payload: %w", errShortRead))
	}

	data := payload.Bytes()
	if flags&flagCompressed != 0 {
		pool, ok := r.compressionPool.Get(r.negotiatedEncoding)
		if !ok || pool == nil {
			return Errorf(CodeInternal, "protocol error: compressed frame received but no compression negotiated")
		}
		decompressed := r.bufferPool.Get()
		defer r.bufferPool.Put(decompressed)
		if err := pool.Decompress(decompressed, bytes.NewReader(data)); err != nil {
			return NewError(CodeInternal, fmt.Errorf("decompress frame: %w", err))
		}
		data = decompressed.Bytes()
	}

	if err := r.codec.Unmarshal(data, msg); err != nil {
		return NewError(CodeInternal, fmt.Errorf("unmarshal message: %w", err))
	}
	return nil
}
