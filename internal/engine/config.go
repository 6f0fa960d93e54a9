package engine

import "github.com/danmuck/htlvc/internal/protocol/frame"

// Config defines engine bounds.
type Config struct {
	// MaxNestingDepth caps nested-in-nested recursion.
	MaxNestingDepth int
	// QueueDepth sizes the Loop inbound queue.
	QueueDepth int
	// Allocator backs every outbound buffer. Nil uses the heap.
	Allocator frame.Allocator
}

func DefaultConfig() Config {
	return Config{
		MaxNestingDepth: 4,
		QueueDepth:      64,
		Allocator:       frame.HeapAllocator{},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxNestingDepth <= 0 {
		c.MaxNestingDepth = def.MaxNestingDepth
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.Allocator == nil {
		c.Allocator = def.Allocator
	}
	return c
}
