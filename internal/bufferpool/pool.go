// Package bufferpool provides the bounded scratch buffers codecs and
// the envelope reader/writer borrow from (spec §3, Codec: "each side
// carries a bounded scratch buffer handed to the user by reference").
package bufferpool

import (
	"bytes"
	"sync"
)

// Pool recycles *bytes.Buffer values across calls. Buffers are reset
// before reuse; callers must not retain a buffer past Put.
type Pool struct {
	pool sync.Pool
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{pool: sync.Pool{New: func() any { return new(bytes.Buffer) }}}
}

// Get returns an empty buffer, allocating one only if the pool is dry.
func (p *Pool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool. Buffers that have grown unreasonably
// large are dropped rather than retained, so one oversized message
// doesn't pin memory for the life of the process.
func (p *Pool) Put(buf *bytes.Buffer) {
	const maxRetainedCapacity = 4 << 20 // 4 MiB
	if buf.Cap() > maxRetainedCapacity {
		return
	}
	p.pool.Put(buf)
}
