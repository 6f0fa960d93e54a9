package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/htlvc/internal/protocol"
)

const (
	// MethodStream tags frames carried over a TCP byte stream.
	MethodStream protocol.TransferMethod = 1
	// MethodWebSocket tags frames carried one per binary WebSocket message.
	MethodWebSocket protocol.TransferMethod = 2

	// ChannelBase is the first per-peer channel method handed out by
	// Router.Open. Methods below it name transport kinds or fixed links.
	ChannelBase = 16
	maxChannel  = 255
)

// MethodName returns a metrics and log label for method.
func MethodName(method protocol.TransferMethod) string {
	switch method {
	case MethodStream:
		return "stream"
	case MethodWebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("method_%d", method)
	}
}

var (
	ErrNoLink        = errors.New("transport: no link attached")
	ErrShortWrite    = errors.New("transport: short write")
	ErrNoChannel     = errors.New("transport: no free channel")
	ErrInvalidConfig = errors.New("transport: invalid config")
)

type Config struct {
	StreamAddr      string
	WebSocketPath   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RatePerSecond   int
	RateBurst       int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	TLS             TLSConfig
}

func DefaultConfig() Config {
	return Config{
		StreamAddr:      "127.0.0.1:7420",
		WebSocketPath:   "/ws",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Second,
		RatePerSecond:   200,
		RateBurst:       50,
		BreakerFailures: 5,
		BreakerCooldown: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be > 0", ErrInvalidConfig)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: write_timeout must be > 0", ErrInvalidConfig)
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		return fmt.Errorf("%w: rate limits must be >= 0", ErrInvalidConfig)
	}
	if c.RatePerSecond > 0 && c.RateBurst == 0 {
		return fmt.Errorf("%w: rate_burst must be > 0 when rate_per_second is set", ErrInvalidConfig)
	}
	if c.BreakerFailures == 0 {
		return fmt.Errorf("%w: breaker_failures must be > 0", ErrInvalidConfig)
	}
	if c.BreakerCooldown <= 0 {
		return fmt.Errorf("%w: breaker_cooldown must be > 0", ErrInvalidConfig)
	}
	if c.WebSocketPath != "" && !strings.HasPrefix(c.WebSocketPath, "/") {
		return fmt.Errorf("%w: websocket_path must start with /", ErrInvalidConfig)
	}
	return c.TLS.Validate()
}
