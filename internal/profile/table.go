package profile

import (
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/protocol"
)

// Table builds a dispatch table with a fresh register file.
func (p Profile) Table() ([]engine.Entry, error) {
	return p.TableWith(NewRegisters())
}

// TableWith builds a dispatch table whose register handlers share regs. A nil
// regs gets a fresh register file.
func (p Profile) TableWith(regs *Registers) ([]engine.Entry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if regs == nil {
		regs = NewRegisters()
	}
	out := make([]engine.Entry, 0, len(p.Tags))
	for _, tc := range p.Tags {
		out = append(out, engine.Entry{
			Tag:     byte(tc.Tag),
			Name:    tc.Name,
			Handler: handlerFor(tc, regs),
		})
	}
	return out, nil
}

func handlerFor(tc TagConfig, regs *Registers) engine.Handler {
	switch tc.Handler {
	case HandlerStatic:
		value, _ := hex.DecodeString(tc.Value)
		return func(req protocol.Record) (protocol.Record, error) {
			return engine.Reply(req, value), nil
		}
	case HandlerStatus:
		return func(req protocol.Record) (protocol.Record, error) {
			return engine.OK(req), nil
		}
	case HandlerVersion:
		var v [2]byte
		binary.BigEndian.PutUint16(v[:], protocol.ProtocolVersion)
		return func(req protocol.Record) (protocol.Record, error) {
			return engine.Reply(req, v[:]), nil
		}
	case HandlerRegister:
		slot := tc.Slot
		if tc.Kind == KindSet {
			return func(req protocol.Record) (protocol.Record, error) {
				regs.Set(slot, req.Value)
				return engine.OK(req), nil
			}
		}
		return func(req protocol.Record) (protocol.Record, error) {
			// An unset slot reads back empty.
			value, _ := regs.Get(slot)
			return engine.Reply(req, value), nil
		}
	default:
		return engine.Echo
	}
}

// Registers is the named value store behind register handlers.
type Registers struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewRegisters() *Registers {
	return &Registers{values: make(map[string][]byte)}
}

func (r *Registers) Set(slot string, value []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[slot] = append([]byte(nil), value...)
}

func (r *Registers) Get(slot string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[slot]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Snapshot copies every register.
func (r *Registers) Snapshot() map[string][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte, len(r.values))
	for k, v := range r.values {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
