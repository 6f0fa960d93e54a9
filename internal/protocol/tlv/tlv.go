package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/htlvc/internal/protocol"
)

const PrefixLen = protocol.FragmentPrefixLen

var (
	ErrShortFragmentHeader = errors.New("tlv: short fragment header")
	ErrShortFragmentValue  = errors.New("tlv: short fragment value")
)

// Fragment is one bare sub-record of a nested value.
type Fragment struct {
	Tag   byte
	Value []byte
}

// Cursor walks concatenated fragments left to right, tracking how many bytes
// remain. It never reads past the slice it was given.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Remaining returns the unconsumed byte count.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Next decodes the fragment at the cursor. It returns io.EOF when nothing
// remains. A fragment whose prefix or value would run past the remaining bytes
// is an error and leaves the cursor where it was.
func (c *Cursor) Next() (Fragment, error) {
	remaining := c.Remaining()
	if remaining == 0 {
		return Fragment{}, io.EOF
	}
	if remaining < PrefixLen {
		return Fragment{}, fmt.Errorf("%w: remaining=%d", ErrShortFragmentHeader, remaining)
	}
	tag := c.buf[c.off]
	l := int(binary.BigEndian.Uint16(c.buf[c.off+1 : c.off+3]))
	if PrefixLen+l > remaining {
		return Fragment{}, fmt.Errorf("%w: tag=0x%02x declared=%d remaining=%d", ErrShortFragmentValue, tag, l, remaining-PrefixLen)
	}
	start := c.off + PrefixLen
	val := make([]byte, l)
	copy(val, c.buf[start:start+l])
	c.off = start + l
	return Fragment{Tag: tag, Value: val}, nil
}

func EncodeFragment(f Fragment) []byte {
	buf := make([]byte, PrefixLen+len(f.Value))
	buf[0] = f.Tag
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(f.Value)))
	copy(buf[3:], f.Value)
	return buf
}

func EncodeFragments(fragments []Fragment) []byte {
	out := make([]byte, 0)
	for _, f := range fragments {
		out = append(out, EncodeFragment(f)...)
	}
	return out
}

// DecodeFragments decodes every fragment in payload or fails on the first
// malformed one.
func DecodeFragments(payload []byte) ([]Fragment, error) {
	fragments := make([]Fragment, 0)
	c := NewCursor(payload)
	for {
		f, err := c.Next()
		if errors.Is(err, io.EOF) {
			return fragments, nil
		}
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
}
