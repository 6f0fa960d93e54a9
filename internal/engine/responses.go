package engine

import "github.com/danmuck/htlvc/internal/protocol"

// Reply answers req with value on the same tag and transfer method.
func Reply(req protocol.Record, value []byte) protocol.Record {
	out := make([]byte, len(value))
	copy(out, value)
	return protocol.Record{Tag: req.Tag, Value: out, Method: req.Method}
}

// OK answers req with the one-byte success status.
func OK(req protocol.Record) protocol.Record {
	return Reply(req, []byte{protocol.StatusOK})
}

// Fail answers req with the one-byte failure status.
func Fail(req protocol.Record) protocol.Record {
	return Reply(req, []byte{protocol.StatusErr})
}

// Echo answers with the request value unchanged.
func Echo(req protocol.Record) (protocol.Record, error) {
	return Reply(req, req.Value), nil
}
