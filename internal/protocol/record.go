package protocol

import "fmt"

// TransferMethod identifies the transport channel a record arrived on.
// The engine threads it through untouched.
type TransferMethod uint8

// Record is one decoded tag/length/value unit.
type Record struct {
	Tag    byte
	Value  []byte
	Method TransferMethod
}

// Len returns the wire length field for r.
func (r Record) Len() uint16 {
	return uint16(len(r.Value))
}

// Validate enforces the value bound.
func (r Record) Validate() error {
	if len(r.Value) > MaxValueLen {
		return fmt.Errorf("%w: tag=0x%02x len=%d", ErrValueTooLarge, r.Tag, len(r.Value))
	}
	return nil
}

// Clone returns a copy that shares no storage with r.
func (r Record) Clone() Record {
	out := r
	out.Value = cloneBytes(r.Value)
	return out
}

func cloneBytes(in []byte) []byte {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
