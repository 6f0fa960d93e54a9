package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/htlvc/internal/protocol"
)

// Limits constrains stream reads.
type Limits struct {
	MaxValueLen int
}

func DefaultLimits() Limits {
	return Limits{MaxValueLen: protocol.MaxValueLen}
}

// ReadFrame pulls one complete frame off a byte stream. Bytes before a
// recognized header are skipped. An oversized frame is consumed whole before
// ErrValueTooLarge is returned. The returned slice is owned by the caller and
// still has to pass Decode.
func ReadFrame(r *bufio.Reader, limits Limits) ([]byte, error) {
	var header byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if protocol.IsHeader(b) {
			header = b
			break
		}
	}

	var prefix [3]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, truncated(err)
	}
	declared := int(binary.BigEndian.Uint16(prefix[1:3]))
	if declared > limits.MaxValueLen {
		// Skip the whole oversized frame so resync never starts inside it.
		if _, err := r.Discard(declared + protocol.ChecksumLen); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: declared=%d", protocol.ErrValueTooLarge, declared)
	}

	out := make([]byte, protocol.EnvelopeLen+declared)
	out[0] = header
	copy(out[1:4], prefix[:])
	if _, err := io.ReadFull(r, out[4:]); err != nil {
		return nil, truncated(err)
	}
	return out, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", protocol.ErrTruncated, err)
	}
	return err
}
