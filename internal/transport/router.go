package transport

import (
	"fmt"
	"sync"

	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Link writes one complete outbound frame.
type Link interface {
	WriteFrame(frame []byte) (int, error)
}

type route struct {
	kind protocol.TransferMethod
	link Link
}

// Router maps transfer methods to outbound links. A fixed method has one
// link set by Attach. Each connected peer gets its own channel method from
// Open, so replies return to the peer that sent the request. Sending to a
// kind (MethodStream, MethodWebSocket) with no fixed link fans out to every
// open channel of that kind. Send satisfies engine.SendFunc.
type Router struct {
	mu       sync.RWMutex
	cfg      Config
	routes   map[protocol.TransferMethod]route
	breakers map[protocol.TransferMethod]*gobreaker.CircuitBreaker
	next     int
}

func NewRouter(cfg Config) *Router {
	return &Router{
		cfg:      cfg,
		routes:   make(map[protocol.TransferMethod]route),
		breakers: make(map[protocol.TransferMethod]*gobreaker.CircuitBreaker),
		next:     ChannelBase,
	}
}

// Attach makes link the outbound target for method, replacing any earlier one.
func (r *Router) Attach(method protocol.TransferMethod, link Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[method] = route{kind: method, link: link}
	if _, ok := r.breakers[method]; !ok {
		r.breakers[method] = r.newBreaker(method, method)
	}
	log.Debug().Str("method", MethodName(method)).Msg("transport.Router.Attach")
}

// Detach removes link if it is still the target for method.
func (r *Router) Detach(method protocol.TransferMethod, link Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.routes[method]; ok && cur.link == link {
		delete(r.routes, method)
		log.Debug().Str("method", MethodName(method)).Msg("transport.Router.Detach")
	}
}

// Open allocates a channel method of the given kind for link. The channel
// stays routed to link until Close.
func (r *Router) Open(kind protocol.TransferMethod, link Link) (protocol.TransferMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxChannel - ChannelBase + 1
	for i := 0; i < span; i++ {
		id := ChannelBase + (r.next-ChannelBase+i)%span
		method := protocol.TransferMethod(id)
		if _, taken := r.routes[method]; taken {
			continue
		}
		r.next = ChannelBase + (id-ChannelBase+1)%span
		r.routes[method] = route{kind: kind, link: link}
		r.breakers[method] = r.newBreaker(method, kind)
		log.Debug().
			Str("kind", MethodName(kind)).
			Uint8("channel", uint8(method)).
			Msg("transport.Router.Open")
		return method, nil
	}
	return 0, fmt.Errorf("%w: kind=%s", ErrNoChannel, MethodName(kind))
}

// Close releases a channel opened for link.
func (r *Router) Close(method protocol.TransferMethod, link Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.routes[method]; ok && cur.link == link && method >= ChannelBase {
		delete(r.routes, method)
		delete(r.breakers, method)
		log.Debug().
			Str("kind", MethodName(cur.kind)).
			Uint8("channel", uint8(method)).
			Msg("transport.Router.Close")
	}
}

// Kind returns the transport kind behind method, which is method itself for
// anything that is not an open channel.
func (r *Router) Kind(method protocol.TransferMethod) protocol.TransferMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rt, ok := r.routes[method]; ok {
		return rt.kind
	}
	return method
}

// Attached reports whether method has a link or an open channel of that kind.
func (r *Router) Attached(method protocol.TransferMethod) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.routes[method]; ok {
		return true
	}
	return len(r.channelsLocked(method)) > 0
}

// BreakerState returns the breaker state label for method. For a kind with
// open channels it is the healthiest channel's state.
func (r *Router) BreakerState(method protocol.TransferMethod) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cb, ok := r.breakers[method]; ok {
		return cb.State().String()
	}
	best := gobreaker.StateOpen
	channels := r.channelsLocked(method)
	if len(channels) == 0 {
		return gobreaker.StateClosed.String()
	}
	for _, ch := range channels {
		if st := r.breakers[ch].State(); st < best {
			best = st
		}
	}
	return best.String()
}

// Channels returns the number of open channels of kind.
func (r *Router) Channels(kind protocol.TransferMethod) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channelsLocked(kind))
}

func (r *Router) channelsLocked(kind protocol.TransferMethod) []protocol.TransferMethod {
	var out []protocol.TransferMethod
	for method, rt := range r.routes {
		if method >= ChannelBase && rt.kind == kind {
			out = append(out, method)
		}
	}
	return out
}

// Send writes frame to the link for method through its breaker. A kind
// without a fixed link fans out to its open channels and succeeds when any
// channel accepts the frame.
func (r *Router) Send(frame []byte, method protocol.TransferMethod) (int, error) {
	r.mu.RLock()
	rt, ok := r.routes[method]
	cb := r.breakers[method]
	var fanout []protocol.TransferMethod
	if !ok {
		fanout = r.channelsLocked(method)
	}
	r.mu.RUnlock()

	if ok {
		return r.write(frame, rt, cb)
	}
	if len(fanout) == 0 {
		name := MethodName(method)
		observability.RecordTransportDrop(name, "no_link")
		return 0, fmt.Errorf("%w: method=%s", ErrNoLink, name)
	}

	var firstErr error
	sent := 0
	for _, ch := range fanout {
		r.mu.RLock()
		rt, ok := r.routes[ch]
		cb := r.breakers[ch]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if _, err := r.write(frame, rt, cb); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	if sent == 0 {
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: method=%s", ErrNoLink, MethodName(method))
		}
		return 0, firstErr
	}
	return len(frame), nil
}

func (r *Router) write(frame []byte, rt route, cb *gobreaker.CircuitBreaker) (int, error) {
	name := MethodName(rt.kind)
	out, err := cb.Execute(func() (interface{}, error) {
		n, err := rt.link.WriteFrame(frame)
		if err == nil && n != len(frame) {
			err = fmt.Errorf("%w: wrote=%d want=%d", ErrShortWrite, n, len(frame))
		}
		return n, err
	})
	if err != nil {
		observability.RecordTransportDrop(name, "send_failed")
		return 0, err
	}
	observability.RecordTransportFrame(name, "out")
	return out.(int), nil
}

func (r *Router) newBreaker(method, kind protocol.TransferMethod) *gobreaker.CircuitBreaker {
	failures := r.cfg.BreakerFailures
	name := MethodName(kind)
	if method != kind {
		name = fmt.Sprintf("%s/%d", name, method)
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("method", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("transport.Router breaker")
		},
	})
}
