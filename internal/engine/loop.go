package engine

import (
	"context"
	"errors"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrLoopStopped = errors.New("engine: loop stopped")

// Inbound is one complete frame delivered by a transport.
type Inbound struct {
	Frame  []byte
	Method protocol.TransferMethod
}

// Loop is the single task that owns an Engine when several transports
// deliver concurrently. Frames are processed in delivery order.
type Loop struct {
	engine *Engine
	in     chan Inbound
	done   chan struct{}
}

func NewLoop(e *Engine) *Loop {
	return &Loop{
		engine: e,
		in:     make(chan Inbound, e.cfg.QueueDepth),
		done:   make(chan struct{}),
	}
}

// Engine returns the owned engine.
func (l *Loop) Engine() *Engine {
	return l.engine
}

// Pending returns the number of queued frames not yet processed.
func (l *Loop) Pending() int {
	return len(l.in)
}

// Deliver queues a copy of in, blocking while the queue is full.
func (l *Loop) Deliver(ctx context.Context, in Inbound) error {
	buf := make([]byte, len(in.Frame))
	copy(buf, in.Frame)
	in.Frame = buf

	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.in <- in:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	log.Info().Int("queue_depth", cap(l.in)).Msg("engine.Loop.Run start")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("engine.Loop.Run shutdown")
			return ctx.Err()
		case in := <-l.in:
			_ = l.engine.Process(in.Frame, in.Method)
		}
	}
}
