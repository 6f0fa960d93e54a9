package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/htlvc/internal/protocol"
)

// Frame is one decoded inbound frame.
type Frame struct {
	Header byte
	Record protocol.Record
}

// Decode parses and validates one complete frame. The checksum covers every
// byte of buf except the final two; the received checksum is read right after
// the declared value. method is carried into the record, never read from buf.
func Decode(buf []byte, method protocol.TransferMethod) (Frame, error) {
	if len(buf) < protocol.EnvelopeLen {
		return Frame{}, fmt.Errorf("%w: len=%d", protocol.ErrTruncated, len(buf))
	}
	if !protocol.IsHeader(buf[0]) {
		return Frame{}, fmt.Errorf("%w: 0x%02x", protocol.ErrBadHeader, buf[0])
	}

	tag := buf[1]
	declared := int(binary.BigEndian.Uint16(buf[2:4]))
	if declared+protocol.EnvelopeLen > len(buf) {
		return Frame{}, fmt.Errorf("%w: declared=%d len=%d", protocol.ErrLengthOverflow, declared, len(buf))
	}

	sum := protocol.Checksum(buf[:len(buf)-protocol.ChecksumLen])
	received := binary.BigEndian.Uint16(buf[declared+4 : declared+6])
	if sum != received {
		return Frame{}, fmt.Errorf("%w: computed=0x%04x received=0x%04x", protocol.ErrChecksumMismatch, sum, received)
	}

	if declared > protocol.MaxValueLen {
		return Frame{}, fmt.Errorf("%w: declared=%d", protocol.ErrValueTooLarge, declared)
	}
	value := make([]byte, declared)
	copy(value, buf[4:4+declared])

	return Frame{
		Header: buf[0],
		Record: protocol.Record{Tag: tag, Value: value, Method: method},
	}, nil
}
