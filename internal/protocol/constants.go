package protocol

// Header bytes identifying the frame kind.
const (
	HeaderCommand  byte = 0xAA
	HeaderResponse byte = 0xBB
	HeaderReport   byte = 0xCC
)

// TagNested marks a value that is itself a sequence of bare TLV fragments.
const TagNested byte = 0xFF

const (
	// MaxValueLen bounds every record value.
	MaxValueLen = 128
	// EnvelopeLen is header + tag + length + checksum.
	EnvelopeLen = 6
	// FragmentPrefixLen is tag + length for a bare sub-record.
	FragmentPrefixLen = 3
	// ChecksumLen is the trailing big-endian checksum width.
	ChecksumLen = 2

	// MaxFrameLen is the largest well-formed frame.
	MaxFrameLen = EnvelopeLen + MaxValueLen
)

// ProtocolVersion is reported by devices that expose a status tag.
const ProtocolVersion uint16 = 0x0001

// One-byte response values used by handlers that only acknowledge.
const (
	StatusOK  byte = 0x00
	StatusErr byte = 0xFF
)

// IsHeader reports whether b is one of the three recognized header bytes.
func IsHeader(b byte) bool {
	switch b {
	case HeaderCommand, HeaderResponse, HeaderReport:
		return true
	default:
		return false
	}
}

// HeaderName is used in logs and admin listings.
func HeaderName(b byte) string {
	switch b {
	case HeaderCommand:
		return "command"
	case HeaderResponse:
		return "response"
	case HeaderReport:
		return "report"
	default:
		return "unknown"
	}
}
