package engine

import (
	"fmt"

	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendReport emits an unsolicited report frame on method.
func (e *Engine) SendReport(tag byte, value []byte, method protocol.TransferMethod) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.sendReport(tag, value, method)
	observability.RecordReport(err)
	if err != nil {
		log.Warn().Err(err).Uint8("tag", tag).Uint8("method", uint8(method)).Msg("engine.Engine.SendReport")
	}
	return err
}

func (e *Engine) sendReport(tag byte, value []byte, method protocol.TransferMethod) error {
	if e.send == nil {
		return protocol.ErrNotRegistered
	}
	if len(value) > protocol.MaxValueLen {
		return fmt.Errorf("%w: tag=0x%02x len=%d", protocol.ErrValueTooLarge, tag, len(value))
	}
	rec := protocol.Record{Tag: tag, Value: value, Method: method}
	return e.emit(protocol.HeaderReport, rec)
}
