package frame

import (
	"fmt"
	"sync"

	"github.com/danmuck/htlvc/internal/protocol"
)

// Allocator is the backing store for outbound buffers.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(b []byte)
}

// HeapAllocator allocates from the Go heap and never fails.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (HeapAllocator) Free([]byte) {}

// Pool is a bounded backing store. Alloc fails with protocol.ErrAllocation
// once outstanding bytes would exceed capacity.
type Pool struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	peak     int
}

// NewPool creates a pool holding at most capacity outstanding bytes.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

func (p *Pool) Alloc(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || p.inUse+n > p.capacity {
		return nil, fmt.Errorf("%w: want=%d in_use=%d capacity=%d", protocol.ErrAllocation, n, p.inUse, p.capacity)
	}
	p.inUse += n
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	return make([]byte, n), nil
}

func (p *Pool) Free(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse -= len(b)
	if p.inUse < 0 {
		p.inUse = 0
	}
}

// InUse returns outstanding bytes.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Peak returns the high-water mark of outstanding bytes.
func (p *Pool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Buffer is an owned byte sequence produced by the codec. The creator owns it
// until Release; Bytes must not be retained past that call.
type Buffer struct {
	raw   []byte
	n     int
	alloc Allocator
}

// NewBuffer copies b into storage obtained from alloc. No partial buffer is
// produced on failure.
func NewBuffer(alloc Allocator, b []byte) (*Buffer, error) {
	buf, err := allocBuffer(alloc, len(b))
	if err != nil {
		return nil, err
	}
	buf.n = copy(buf.raw, b)
	return buf, nil
}

func allocBuffer(alloc Allocator, n int) (*Buffer, error) {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	raw, err := alloc.Alloc(n)
	if err != nil {
		return nil, err
	}
	return &Buffer{raw: raw, alloc: alloc}, nil
}

// Bytes returns the written bytes. A released or nil buffer returns nil.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.raw == nil {
		return nil
	}
	return b.raw[:b.n]
}

func (b *Buffer) Len() int {
	if b == nil || b.raw == nil {
		return 0
	}
	return b.n
}

// Release returns the storage to its allocator. Releasing twice, or releasing
// a nil buffer, is a no-op.
func (b *Buffer) Release() {
	if b == nil || b.raw == nil {
		return
	}
	b.alloc.Free(b.raw)
	b.raw = nil
	b.n = 0
}
