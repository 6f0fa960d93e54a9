package main

import (
	"bufio"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/danmuck/htlvc/internal/protocol/tlv"
	"github.com/gorilla/websocket"
)

var ErrBadFragment = errors.New("htlvcctl: bad nested fragment")

// buildCommand encodes a command frame. A non-empty nested list replaces tag
// and value with a nested record.
func buildCommand(tag byte, value []byte, nested []tlv.Fragment) ([]byte, error) {
	if len(nested) > 0 {
		tag = protocol.TagNested
		value = tlv.EncodeFragments(nested)
	}
	buf, err := frame.BuildFrame(nil, protocol.HeaderCommand, tag, value)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseNested reads "tag=hex,tag=hex".
func parseNested(raw string) ([]tlv.Fragment, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]tlv.Fragment, 0, len(parts))
	for i, part := range parts {
		tagRaw, valueRaw, _ := strings.Cut(strings.TrimSpace(part), "=")
		tag, err := parseTag(tagRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: [%d] %v", ErrBadFragment, i, err)
		}
		value, err := hex.DecodeString(valueRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: [%d] %v", ErrBadFragment, i, err)
		}
		out = append(out, tlv.Fragment{Tag: tag, Value: value})
	}
	return out, nil
}

func parseTag(raw string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("tag %q: %w", raw, err)
	}
	return byte(v), nil
}

// describe renders a decoded frame, expanding nested values.
func describe(fr frame.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tag=0x%02x len=%d value=%s",
		protocol.HeaderName(fr.Header), fr.Record.Tag, len(fr.Record.Value), hex.EncodeToString(fr.Record.Value))
	if fr.Record.Tag != protocol.TagNested {
		return b.String()
	}
	frags, err := tlv.DecodeFragments(fr.Record.Value)
	if err != nil {
		fmt.Fprintf(&b, "\n  nested: %v", err)
		return b.String()
	}
	for _, f := range frags {
		fmt.Fprintf(&b, "\n  tag=0x%02x len=%d value=%s", f.Tag, len(f.Value), hex.EncodeToString(f.Value))
	}
	return b.String()
}

// exchanger sends one command and reads the frames that follow.
type exchanger interface {
	Send(cmd []byte) error
	Recv(deadline time.Time) ([]byte, error)
	Close() error
}

type streamExchanger struct {
	conn   net.Conn
	reader *bufio.Reader
}

// dialStream connects over TCP, or TLS when tlsCfg is non-nil.
func dialStream(addr string, timeout time.Duration, tlsCfg *tls.Config) (*streamExchanger, error) {
	dialer := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if tlsCfg != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	return &streamExchanger{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (s *streamExchanger) Send(cmd []byte) error {
	_, err := s.conn.Write(cmd)
	return err
}

func (s *streamExchanger) Recv(deadline time.Time) ([]byte, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return frame.ReadFrame(s.reader, frame.DefaultLimits())
}

func (s *streamExchanger) Close() error {
	return s.conn.Close()
}

type wsExchanger struct {
	conn *websocket.Conn
}

func dialWebSocket(url string, timeout time.Duration) (*wsExchanger, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsExchanger{conn: conn}, nil
}

func (w *wsExchanger) Send(cmd []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, cmd)
}

func (w *wsExchanger) Recv(deadline time.Time) ([]byte, error) {
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		kind, msg, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (w *wsExchanger) Close() error {
	return w.conn.Close()
}

// exchange sends cmd and collects frames until a response arrives or, when
// follow is set, until the deadline passes.
func exchange(x exchanger, cmd []byte, timeout time.Duration, follow bool) ([]frame.Frame, error) {
	if err := x.Send(cmd); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	var out []frame.Frame
	for {
		raw, err := x.Recv(deadline)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && len(out) > 0 {
				return out, nil
			}
			return out, err
		}
		fr, err := frame.Decode(raw, 0)
		if err != nil {
			return out, err
		}
		out = append(out, fr)
		if fr.Header == protocol.HeaderResponse && !follow {
			return out, nil
		}
	}
}
