// Package pool provides type-safe object pooling and a size-bucketed byte
// buffer pool used on the block read path.
//
// Example usage:
//
//	buf := pool.GlobalBufferPool.Get(n)
//	defer pool.GlobalBufferPool.Put(buf)
//
//	// Using custom pools
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
//	obj := myPool.Get()
//	defer myPool.Put(obj)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset
// function. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The new function is called when the pool is empty. The reset function,
// if not nil, is called before an object goes back into the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns current pool statistics.
//
// Returns:
//   - allocated: Total number of objects created by the pool
//   - inUse: Number of objects currently checked out from the pool
//   - hits: Number of Get calls served by a recycled object
//   - misses: Number of Get calls that had to allocate
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	allocated = atomic.LoadInt64(&p.stats.allocated)
	gets := atomic.LoadInt64(&p.stats.gets)
	misses = allocated
	hits = gets - misses
	if hits < 0 {
		hits = 0
	}
	return allocated, atomic.LoadInt64(&p.stats.inUse), hits, misses
}

// GlobalBufferPool is shared by every reader.
var GlobalBufferPool = NewBufferPool()

// BufferPool manages byte buffer pooling with size-based buckets.
// It maintains multiple pools for different buffer sizes, automatically
// selecting the appropriate pool based on requested size.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a new buffer pool with power-of-4 size buckets from
// 512 bytes to 16MB. Larger buffers are allocated directly.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,      // 512B
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size // capture loop variable
		pools[i] = New(
			func() []byte {
				return make([]byte, size)
			},
			nil,
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of exactly size bytes whose capacity is the smallest
// bucket that fits. Contents are not cleared.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}

	// Fallback to allocation for very large buffers
	return make([]byte, size)
}

// Put returns a buffer obtained from Get. Buffers whose capacity matches no
// bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}
