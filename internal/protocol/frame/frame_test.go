package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/testutil/testlog"
)

func TestBuildDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, size := range []int{0, 1, 2, 64, protocol.MaxValueLen} {
		for tag := 0; tag < 0xFF; tag += 17 {
			value := make([]byte, size)
			for i := range value {
				value[i] = byte(i*7 + tag)
			}
			buf, err := BuildFrame(nil, protocol.HeaderCommand, byte(tag), value)
			if err != nil {
				t.Fatalf("build tag=%d size=%d: %v", tag, size, err)
			}
			if buf.Len() != protocol.EnvelopeLen+size {
				t.Fatalf("unexpected frame len=%d size=%d", buf.Len(), size)
			}
			fr, err := Decode(buf.Bytes(), 3)
			if err != nil {
				t.Fatalf("decode tag=%d size=%d: %v", tag, size, err)
			}
			if fr.Header != protocol.HeaderCommand || fr.Record.Tag != byte(tag) || fr.Record.Method != 3 {
				t.Fatalf("unexpected frame: %+v", fr)
			}
			if !bytes.Equal(fr.Record.Value, value) {
				t.Fatalf("value mismatch tag=%d size=%d", tag, size)
			}
			buf.Release()
		}
	}
}

func TestDecodeCommandExample(t *testing.T) {
	testlog.Start(t)
	in := []byte{0xAA, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0xAD}
	fr, err := Decode(in, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fr.Record.Tag != 0x01 || !bytes.Equal(fr.Record.Value, []byte{0, 0}) {
		t.Fatalf("unexpected record: %+v", fr.Record)
	}

	out, err := BuildFrame(nil, protocol.HeaderResponse, 0x01, []byte{protocol.StatusOK})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []byte{0xBB, 0x01, 0x00, 0x01, 0x00, 0x00, 0xBD}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("response got=% x want=% x", out.Bytes(), want)
	}
}

func TestDecodeChecksumSensitivity(t *testing.T) {
	testlog.Start(t)
	buf, err := BuildFrame(nil, protocol.HeaderCommand, 0x21, []byte("hello"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	orig := buf.Bytes()
	positions := []int{1}
	for i := 4; i < 4+len("hello"); i++ {
		positions = append(positions, i)
	}
	for _, pos := range positions {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), orig...)
			mutated[pos] ^= 1 << bit
			if _, err := Decode(mutated, 0); !errors.Is(err, protocol.ErrChecksumMismatch) {
				t.Fatalf("pos=%d bit=%d expected ErrChecksumMismatch, got %v", pos, bit, err)
			}
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	testlog.Start(t)
	full := []byte{0xAA, 0x01, 0x00, 0x00, 0x00, 0xAB}
	for n := 0; n < protocol.EnvelopeLen; n++ {
		if _, err := Decode(full[:n], 0); !errors.Is(err, protocol.ErrTruncated) {
			t.Fatalf("len=%d expected ErrTruncated, got %v", n, err)
		}
	}
	if _, err := Decode(full, 0); err != nil {
		t.Fatalf("minimal frame rejected: %v", err)
	}
}

func TestDecodeBadHeader(t *testing.T) {
	testlog.Start(t)
	_, err := Decode([]byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x02}, 0)
	if !errors.Is(err, protocol.ErrBadHeader) {
		t.Fatalf("expected ErrBadHeader, got %v", err)
	}
}

func TestDecodeLengthOverflow(t *testing.T) {
	testlog.Start(t)
	for declared := 1; declared < 300; declared += 13 {
		buf := []byte{0xAA, 0x01, 0, 0, 0, 0}
		binary.BigEndian.PutUint16(buf[2:4], uint16(declared))
		if _, err := Decode(buf, 0); !errors.Is(err, protocol.ErrLengthOverflow) {
			t.Fatalf("declared=%d expected ErrLengthOverflow, got %v", declared, err)
		}
	}
}

func TestDecodeValueTooLarge(t *testing.T) {
	testlog.Start(t)
	declared := protocol.MaxValueLen + 1
	buf := make([]byte, protocol.EnvelopeLen+declared)
	buf[0] = protocol.HeaderCommand
	buf[1] = 0x05
	binary.BigEndian.PutUint16(buf[2:4], uint16(declared))
	sum := protocol.Checksum(buf[:len(buf)-2])
	binary.BigEndian.PutUint16(buf[len(buf)-2:], sum)

	if _, err := Decode(buf, 0); !errors.Is(err, protocol.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestBuildRejectsOversizedValue(t *testing.T) {
	testlog.Start(t)
	_, err := BuildFrame(nil, protocol.HeaderReport, 1, make([]byte, protocol.MaxValueLen+1))
	if !errors.Is(err, protocol.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestBuildFragmentOmitsHeaderAndChecksum(t *testing.T) {
	testlog.Start(t)
	buf, err := BuildFragment(nil, 0x02, []byte("B"))
	if err != nil {
		t.Fatalf("build fragment: %v", err)
	}
	want := []byte{0x02, 0x00, 0x01, 'B'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("fragment got=% x want=% x", buf.Bytes(), want)
	}
}

func TestPoolExhaustionAndRelease(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(16)
	first, err := BuildFrame(pool, protocol.HeaderReport, 1, make([]byte, 8))
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	if pool.InUse() != 14 {
		t.Fatalf("in use got=%d", pool.InUse())
	}
	if _, err := BuildFrame(pool, protocol.HeaderReport, 1, make([]byte, 8)); !errors.Is(err, protocol.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	first.Release()
	first.Release()
	if pool.InUse() != 0 {
		t.Fatalf("release did not return bytes: %d", pool.InUse())
	}
	if pool.Peak() != 14 {
		t.Fatalf("peak got=%d", pool.Peak())
	}
	if first.Bytes() != nil || first.Len() != 0 {
		t.Fatalf("released buffer still exposes bytes")
	}

	var nilBuf *Buffer
	nilBuf.Release()
}

func TestNewBufferCopies(t *testing.T) {
	testlog.Start(t)
	src := []byte{1, 2, 3}
	buf, err := NewBuffer(nil, src)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	src[0] = 9
	if buf.Bytes()[0] != 1 || buf.Len() != 3 {
		t.Fatalf("buffer not copied: % x", buf.Bytes())
	}
}

func TestReadFrameResyncsOnHeader(t *testing.T) {
	testlog.Start(t)
	a, _ := BuildFrame(nil, protocol.HeaderCommand, 1, []byte("A"))
	b, _ := BuildFrame(nil, protocol.HeaderCommand, 2, []byte("BB"))
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x13, 0x37})
	stream.Write(a.Bytes())
	stream.Write(b.Bytes())

	r := bufio.NewReader(&stream)
	got1, err := ReadFrame(r, DefaultLimits())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(got1, a.Bytes()) {
		t.Fatalf("first got=% x", got1)
	}
	got2, err := ReadFrame(r, DefaultLimits())
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got2, b.Bytes()) {
		t.Fatalf("second got=% x", got2)
	}
	if _, err := ReadFrame(r, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadFrameTruncatedAndOversized(t *testing.T) {
	testlog.Start(t)
	r := bufio.NewReader(bytes.NewReader([]byte{0xAA, 0x01, 0x00, 0x04, 0x01}))
	if _, err := ReadFrame(r, DefaultLimits()); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	r = bufio.NewReader(bytes.NewReader([]byte{0xCC, 0x01, 0x01, 0x00}))
	if _, err := ReadFrame(r, DefaultLimits()); !errors.Is(err, protocol.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestReadFrameSkipsOversizedBody(t *testing.T) {
	testlog.Start(t)
	hidden, _ := BuildFrame(nil, protocol.HeaderCommand, 1, []byte("hidden"))
	good, _ := BuildFrame(nil, protocol.HeaderCommand, 2, []byte("ok"))

	value := make([]byte, protocol.MaxValueLen+1)
	copy(value[10:], hidden.Bytes())
	var stream bytes.Buffer
	stream.Write([]byte{protocol.HeaderCommand, 0x01, 0x00, byte(len(value))})
	stream.Write(value)
	stream.Write([]byte{0x00, 0x00})
	stream.Write(good.Bytes())

	r := bufio.NewReader(&stream)
	if _, err := ReadFrame(r, DefaultLimits()); !errors.Is(err, protocol.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	got, err := ReadFrame(r, DefaultLimits())
	if err != nil {
		t.Fatalf("read after oversized: %v", err)
	}
	if !bytes.Equal(got, good.Bytes()) {
		t.Fatalf("got=% x want=% x", got, good.Bytes())
	}
}
