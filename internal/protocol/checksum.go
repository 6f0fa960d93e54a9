package protocol

// ChecksumFunc computes the trailing integrity value over a byte range.
type ChecksumFunc func(b []byte) uint16

// Checksum sums every byte into a 16-bit accumulator, wrapping modulo 65536.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}
