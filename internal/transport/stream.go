package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// StreamServer accepts TCP peers speaking raw HTLVC frames. Each peer gets
// its own channel method, so responses return to the peer that asked.
// Reports sent to MethodStream reach every connected peer.
type StreamServer struct {
	cfg     Config
	loop    *engine.Loop
	router  *Router
	limiter *peerLimiter

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

func NewStreamServer(cfg Config, loop *engine.Loop, router *Router) (*StreamServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lim, err := newPeerLimiter(cfg)
	if err != nil {
		return nil, err
	}
	return &StreamServer{
		cfg:     cfg,
		loop:    loop,
		router:  router,
		limiter: lim,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe listens on cfg.StreamAddr and serves until ctx is cancelled.
func (s *StreamServer) ListenAndServe(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", s.cfg.TLS.Enabled).
		Msg("transport.StreamServer listening")
	return s.Serve(ctx, ln)
}

func (s *StreamServer) listen() (net.Listener, error) {
	if !s.cfg.TLS.Enabled {
		return net.Listen("tcp", s.cfg.StreamAddr)
	}
	tlsCfg, err := s.cfg.TLS.ServerConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.StreamAddr, tlsCfg)
}

// Serve runs the accept loop on an existing listener.
func (s *StreamServer) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

func (s *StreamServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	peer := peerKey(conn.RemoteAddr())
	log.Info().Str("remote", remote).Msg("transport.StreamServer peer connected")
	defer log.Info().Str("remote", remote).Msg("transport.StreamServer peer disconnected")

	link := &connLink{conn: conn, timeout: s.cfg.WriteTimeout}
	channel, err := s.router.Open(MethodStream, link)
	if err != nil {
		observability.RecordTransportDrop(MethodName(MethodStream), "no_channel")
		log.Warn().Err(err).Str("remote", remote).Msg("transport.StreamServer.handleConn")
		return
	}
	defer s.router.Close(channel, link)

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		buf, err := frame.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				observability.RecordTransportDrop(MethodName(MethodStream), "read_error")
				log.Debug().Err(err).Str("remote", remote).Msg("transport.StreamServer.handleConn read")
			}
			if errors.Is(err, protocol.ErrValueTooLarge) {
				continue
			}
			return
		}
		if !s.limiter.Allow(peer) {
			observability.RecordTransportDrop(MethodName(MethodStream), "rate_limited")
			log.Debug().Str("remote", remote).Msg("transport.StreamServer.handleConn rate limited")
			continue
		}
		observability.RecordTransportFrame(MethodName(MethodStream), "in")
		if err := s.loop.Deliver(ctx, engine.Inbound{Frame: buf, Method: channel}); err != nil {
			log.Debug().Err(err).Str("remote", remote).Msg("transport.StreamServer.handleConn deliver")
			return
		}
	}
}

func (s *StreamServer) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *StreamServer) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *StreamServer) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Peers returns the number of connected stream peers.
func (s *StreamServer) Peers() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

type connLink struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func (l *connLink) WriteFrame(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	return l.conn.Write(b)
}

func peerKey(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
