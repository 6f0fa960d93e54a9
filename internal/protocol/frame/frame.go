package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/htlvc/internal/protocol"
)

// Layout selects the optional parts of an outbound unit.
type Layout struct {
	HasHeader bool
	Header    byte
	// Checksum appends a trailer computed over everything written before it.
	// Nil omits the trailer.
	Checksum protocol.ChecksumFunc
}

// FrameLayout is a full HTLVC frame with the additive checksum.
func FrameLayout(header byte) Layout {
	return Layout{HasHeader: true, Header: header, Checksum: protocol.Checksum}
}

// FragmentLayout is a bare TLV fragment: no header, no checksum.
func FragmentLayout() Layout {
	return Layout{}
}

// Size returns the encoded length for a value of n bytes.
func (l Layout) Size(n int) int {
	size := 1 + 2 + n
	if l.HasHeader {
		size++
	}
	if l.Checksum != nil {
		size += protocol.ChecksumLen
	}
	return size
}

// Build encodes header?, tag, BE length, value, checksum? into a new Buffer.
func Build(alloc Allocator, layout Layout, tag byte, value []byte) (*Buffer, error) {
	if len(value) > protocol.MaxValueLen {
		return nil, fmt.Errorf("%w: tag=0x%02x len=%d", protocol.ErrValueTooLarge, tag, len(value))
	}
	buf, err := allocBuffer(alloc, layout.Size(len(value)))
	if err != nil {
		return nil, err
	}

	i := 0
	if layout.HasHeader {
		buf.raw[i] = layout.Header
		i++
	}
	buf.raw[i] = tag
	binary.BigEndian.PutUint16(buf.raw[i+1:i+3], uint16(len(value)))
	i += 3
	i += copy(buf.raw[i:], value)

	if layout.Checksum != nil {
		sum := layout.Checksum(buf.raw[:i])
		binary.BigEndian.PutUint16(buf.raw[i:i+2], sum)
		i += 2
	}
	buf.n = i
	return buf, nil
}

// BuildFrame encodes a checksummed frame with the given header.
func BuildFrame(alloc Allocator, header byte, tag byte, value []byte) (*Buffer, error) {
	return Build(alloc, FrameLayout(header), tag, value)
}

// BuildFragment encodes a bare TLV fragment for nested values.
func BuildFragment(alloc Allocator, tag byte, value []byte) (*Buffer, error) {
	return Build(alloc, FragmentLayout(), tag, value)
}
