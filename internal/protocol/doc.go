// Package protocol owns the HTLVC wire contract shared by codec and engine.
//
// Ownership boundary:
// - header/tag constants and bounds
// - in-memory record shape
// - additive checksum
// - error taxonomy for decode, dispatch, and registration
//
// Wire layout:
//
//	header(1) | tag(1) | length(2, BE) | value(length) | checksum(2, BE)
//
// Nested sub-records drop header and checksum:
//
//	tag(1) | length(2, BE) | value(length)
package protocol
