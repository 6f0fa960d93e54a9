package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades HTTP requests and treats every binary message as
// one complete frame. Each session gets its own channel method.
type WebSocketHandler struct {
	cfg      Config
	loop     *engine.Loop
	router   *Router
	limiter  *peerLimiter
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(cfg Config, loop *engine.Loop, router *Router) (*WebSocketHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lim, err := newPeerLimiter(cfg)
	if err != nil {
		return nil, err
	}
	return &WebSocketHandler{
		cfg:     cfg,
		loop:    loop,
		router:  router,
		limiter: lim,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("transport.WebSocketHandler upgrade")
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	peer := peerKey(conn.RemoteAddr())
	log.Info().Str("remote", remote).Msg("transport.WebSocketHandler peer connected")
	defer log.Info().Str("remote", remote).Msg("transport.WebSocketHandler peer disconnected")

	link := &wsLink{conn: conn, timeout: h.cfg.WriteTimeout}
	channel, err := h.router.Open(MethodWebSocket, link)
	if err != nil {
		observability.RecordTransportDrop(MethodName(MethodWebSocket), "no_channel")
		log.Warn().Err(err).Str("remote", remote).Msg("transport.WebSocketHandler")
		return
	}
	defer h.router.Close(channel, link)

	conn.SetReadLimit(int64(2 * protocol.MaxFrameLen))
	ctx := r.Context()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("remote", remote).Msg("transport.WebSocketHandler read")
			}
			return
		}
		if kind != websocket.BinaryMessage {
			observability.RecordTransportDrop(MethodName(MethodWebSocket), "not_binary")
			continue
		}
		if !h.limiter.Allow(peer) {
			observability.RecordTransportDrop(MethodName(MethodWebSocket), "rate_limited")
			continue
		}
		observability.RecordTransportFrame(MethodName(MethodWebSocket), "in")
		if err := h.loop.Deliver(ctx, engine.Inbound{Frame: msg, Method: channel}); err != nil {
			log.Debug().Err(err).Str("remote", remote).Msg("transport.WebSocketHandler deliver")
			return
		}
	}
}

type wsLink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (l *wsLink) WriteFrame(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	if err := l.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}
