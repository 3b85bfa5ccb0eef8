// Package pool provides reusable fixed-capacity byte buffers.
//
// Fingerprinting reads staged files in large fixed blocks; with several
// transfer workers running at once, allocating a fresh block per file
// churns the allocator. Buffers are recycled through sync.Pool instead.
package pool

import "sync"

// BufferPool hands out byte buffers of one fixed capacity.
type BufferPool struct {
	size int
	pool sync.Pool
}

// New creates a pool of buffers with the given capacity.
func New(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get returns a buffer of the pool's full capacity.
func (p *BufferPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns buf to the pool for reuse. Buffers whose capacity does not
// match the pool's are dropped rather than mixed in.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}
