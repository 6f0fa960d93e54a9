package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/danmuck/htlvc/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

const (
	nestedProcessed = "processed"
	nestedSkipped   = "skipped"
	nestedTruncated = "truncated"
	nestedMalformed = "malformed"
)

// processNested walks the bare fragments in req.Value, dispatches each one,
// and concatenates the encoded responses in order. Every sub-record is
// dispatched; fragments stop being appended once the next one would push the
// merged value past protocol.MaxValueLen. A fragment running past the
// remaining bytes halts the walk.
func (e *Engine) processNested(req protocol.Record, depth int) (protocol.Record, error) {
	if depth >= e.cfg.MaxNestingDepth {
		return protocol.Record{}, fmt.Errorf("%w: depth=%d", protocol.ErrNestingTooDeep, depth)
	}

	merged := make([]byte, 0, protocol.MaxValueLen)
	processed := 0
	full := false

	cursor := tlv.NewCursor(req.Value)
	for {
		f, err := cursor.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			observability.RecordNested(nestedMalformed)
			log.Debug().Err(err).Int("depth", depth).Msg("engine.Engine.processNested halt")
			break
		}

		sub := protocol.Record{Tag: f.Tag, Value: f.Value, Method: req.Method}
		rsp, err := e.dispatch(sub, depth+1)
		if err != nil {
			observability.RecordNested(nestedSkipped)
			log.Debug().Err(err).Uint8("tag", f.Tag).Int("depth", depth).Msg("engine.Engine.processNested skip")
			continue
		}

		frag, err := frame.BuildFragment(e.cfg.Allocator, rsp.Tag, rsp.Value)
		if err != nil {
			return protocol.Record{}, err
		}
		processed++
		observability.RecordNested(nestedProcessed)
		if !full && len(merged)+frag.Len() <= protocol.MaxValueLen {
			merged = append(merged, frag.Bytes()...)
		} else {
			full = true
			observability.RecordNested(nestedTruncated)
		}
		frag.Release()
	}

	if processed == 0 {
		return protocol.Record{}, protocol.ErrNestedEmpty
	}
	return protocol.Record{Tag: protocol.TagNested, Value: merged, Method: req.Method}, nil
}
