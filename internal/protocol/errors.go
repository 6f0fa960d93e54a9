package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated        = errors.New("protocol: truncated frame")
	ErrBadHeader        = errors.New("protocol: bad header")
	ErrLengthOverflow   = errors.New("protocol: declared length exceeds buffer")
	ErrValueTooLarge    = errors.New("protocol: value too large")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrUnknownTag       = errors.New("protocol: unknown tag")
	ErrNestedEmpty      = errors.New("protocol: nested value yielded no records")
	ErrAllocation       = errors.New("protocol: allocation failure")
	ErrNotRegistered    = errors.New("protocol: not registered")

	ErrRegistrationConflict = errors.New("protocol: registration conflict")
)

var (
	ErrAlreadyRegistered = fmt.Errorf("%w: already registered", ErrRegistrationConflict)
	ErrReservedTag       = fmt.Errorf("%w: reserved nested tag in table", ErrRegistrationConflict)
	ErrNestingTooDeep    = fmt.Errorf("%w: nesting depth exceeded", ErrNestedEmpty)
)
