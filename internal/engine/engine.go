package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandlerFailed = errors.New("engine: handler failed")
	ErrSendFailed    = errors.New("engine: send failed")
)

// Engine is a registered dispatch table plus its outbound callback.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	table []Entry
	send  SendFunc
}

func newEngine(cfg Config, table []Entry, send SendFunc) *Engine {
	return &Engine{cfg: cfg, table: table, send: send}
}

// Process runs one delivered frame through decode, dispatch, encode, and
// send. Failures never reach the wire; the returned error only names why the
// frame was dropped.
func (e *Engine) Process(buf []byte, method protocol.TransferMethod) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.process(buf, method)
	observability.RecordFrame(err)
	if err != nil {
		log.Debug().
			Err(err).
			Uint8("method", uint8(method)).
			Int("len", len(buf)).
			Msg("engine.Engine.Process drop")
	}
	return err
}

func (e *Engine) process(buf []byte, method protocol.TransferMethod) error {
	fr, err := frame.Decode(buf, method)
	if err != nil {
		return err
	}
	log.Debug().
		Str("header", protocol.HeaderName(fr.Header)).
		Uint8("tag", fr.Record.Tag).
		Int("len", len(fr.Record.Value)).
		Uint8("method", uint8(method)).
		Msg("engine.Engine.Process decoded")

	rsp, err := e.dispatch(fr.Record, 0)
	if err != nil {
		return err
	}
	return e.emit(protocol.HeaderResponse, rsp)
}

// dispatch resolves req to a response record. depth counts nested levels
// already entered.
func (e *Engine) dispatch(req protocol.Record, depth int) (protocol.Record, error) {
	if req.Tag == protocol.TagNested {
		return e.processNested(req, depth)
	}
	h, ok := e.resolve(req.Tag)
	if !ok {
		return protocol.Record{}, fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownTag, req.Tag)
	}
	rsp, err := h(req.Clone())
	if err != nil {
		return protocol.Record{}, fmt.Errorf("%w: tag=0x%02x: %w", ErrHandlerFailed, req.Tag, err)
	}
	rsp.Tag = req.Tag
	rsp.Method = req.Method
	if err := rsp.Validate(); err != nil {
		return protocol.Record{}, err
	}
	return rsp, nil
}

// emit builds one checksummed frame and hands it to send. The buffer is
// released once send returns, whatever it returned.
func (e *Engine) emit(header byte, rec protocol.Record) error {
	if e.send == nil {
		return protocol.ErrNotRegistered
	}
	buf, err := frame.BuildFrame(e.cfg.Allocator, header, rec.Tag, rec.Value)
	if err != nil {
		return err
	}
	defer buf.Release()

	if _, err := e.send(buf.Bytes(), rec.Method); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	log.Debug().
		Str("header", protocol.HeaderName(header)).
		Uint8("tag", rec.Tag).
		Int("len", buf.Len()).
		Uint8("method", uint8(rec.Method)).
		Msg("engine.Engine.emit sent")
	return nil
}
