package engine

import (
	"fmt"
	"sync"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Handler answers one request record. The engine forces the response tag and
// transfer method to match the request.
type Handler func(req protocol.Record) (protocol.Record, error)

// SendFunc hands an outbound frame to the transport that owns method. The
// slice is only valid for the duration of the call.
type SendFunc func(frame []byte, method protocol.TransferMethod) (int, error)

// Entry binds one tag to its handler.
type Entry struct {
	Tag     byte
	Name    string
	Handler Handler
}

// Registrar performs the one-shot registration that yields an Engine.
type Registrar struct {
	mu     sync.Mutex
	cfg    Config
	engine *Engine
}

func NewRegistrar(cfg Config) *Registrar {
	return &Registrar{cfg: cfg.WithDefaults()}
}

// Register installs table and send. It succeeds at most once; later calls
// return protocol.ErrAlreadyRegistered and leave the first Engine untouched.
// A table entry using protocol.TagNested rejects the whole table. A nil send
// is accepted; responses and reports then fail with protocol.ErrNotRegistered.
func (r *Registrar) Register(table []Entry, send SendFunc) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		log.Error().Err(protocol.ErrAlreadyRegistered).Msg("engine.Registrar.Register")
		return nil, protocol.ErrAlreadyRegistered
	}
	for i, entry := range table {
		if entry.Tag == protocol.TagNested {
			err := fmt.Errorf("%w: entry[%d] name=%q", protocol.ErrReservedTag, i, entry.Name)
			log.Error().Err(err).Msg("engine.Registrar.Register")
			return nil, err
		}
	}

	entries := make([]Entry, len(table))
	copy(entries, table)
	r.engine = newEngine(r.cfg, entries, send)
	log.Info().Int("tags", len(entries)).Bool("send", send != nil).Msg("engine.Registrar.Register ok")
	return r.engine, nil
}

// Engine returns the registered engine, if any.
func (r *Registrar) Engine() (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine, r.engine != nil
}

// resolve scans the table in order; the first entry with a handler wins.
func (e *Engine) resolve(tag byte) (Handler, bool) {
	for _, entry := range e.table {
		if entry.Tag == tag && entry.Handler != nil {
			return entry.Handler, true
		}
	}
	return nil, false
}

// Tags returns a copy of the registered table.
func (e *Engine) Tags() []Entry {
	out := make([]Entry, len(e.table))
	copy(out, e.table)
	return out
}
