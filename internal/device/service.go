package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/htlvc/internal/admin"
	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/profile"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/danmuck/htlvc/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingDeviceID = errors.New("device: missing device id")
	ErrInvalidPool     = errors.New("device: invalid pool size")
)

// ServiceConfig configures a simulated device process.
type ServiceConfig struct {
	DeviceID      string
	ProfilePath   string
	AdminAddr     string
	AdminToken    string
	CorsOrigins   []string
	WebSocketAddr string
	// PoolBytes bounds outbound buffer memory. Zero uses the heap.
	PoolBytes int
	Engine    engine.Config
	Transport transport.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DeviceID:      "htlvc.local",
		AdminAddr:     "127.0.0.1:7480",
		WebSocketAddr: "127.0.0.1:7421",
		PoolBytes:     4096,
		Engine:        engine.DefaultConfig(),
		Transport:     transport.DefaultConfig(),
	}
}

func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return ErrMissingDeviceID
	}
	if c.PoolBytes < 0 || (c.PoolBytes > 0 && c.PoolBytes < protocol.MaxFrameLen) {
		return fmt.Errorf("%w: %d", ErrInvalidPool, c.PoolBytes)
	}
	return c.Transport.Validate()
}

// Service wires profile, engine, transports, and admin into one process.
type Service struct {
	cfg ServiceConfig

	mu      sync.RWMutex
	engine  *engine.Engine
	loop    *engine.Loop
	router  *transport.Router
	regs    *profile.Registers
	profile profile.Profile
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{cfg: cfg}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext bootstraps and serves until ctx is cancelled.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.bootstrap(); err != nil {
		return err
	}
	return s.serve(ctx)
}

// Engine returns the registered engine once bootstrap has run.
func (s *Service) Engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Service) bootstrap() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	observability.RegisterMetrics()

	p := profile.Default()
	if path := strings.TrimSpace(s.cfg.ProfilePath); path != "" {
		loaded, err := profile.Load(path)
		if err != nil {
			return err
		}
		p = loaded
	}
	regs := profile.NewRegisters()
	table, err := p.TableWith(regs)
	if err != nil {
		return err
	}

	engineCfg := s.cfg.Engine
	if s.cfg.PoolBytes > 0 {
		engineCfg.Allocator = frame.NewPool(s.cfg.PoolBytes)
	}
	router := transport.NewRouter(s.cfg.Transport)
	e, err := engine.NewRegistrar(engineCfg).Register(table, router.Send)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engine = e
	s.loop = engine.NewLoop(e)
	s.router = router
	s.regs = regs
	s.profile = p
	s.mu.Unlock()

	log.Info().
		Str("device", s.cfg.DeviceID).
		Str("profile", p.Name).
		Int("tags", len(table)).
		Int("pool_bytes", s.cfg.PoolBytes).
		Msg("device.Service.bootstrap ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := transport.NewStreamServer(s.cfg.Transport, s.loop, s.router)
	if err != nil {
		return err
	}

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("loop", s.loop.Run)
	run("stream", stream.ListenAndServe)
	if strings.TrimSpace(s.cfg.WebSocketAddr) != "" {
		ws, err := transport.NewWebSocketHandler(s.cfg.Transport, s.loop, s.router)
		if err != nil {
			return err
		}
		run("websocket", func(ctx context.Context) error {
			return serveHTTP(ctx, s.cfg.WebSocketAddr, s.websocketMux(ws))
		})
	}
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		methods := []admin.Method{
			{Name: transport.MethodName(transport.MethodStream), Method: transport.MethodStream},
			{Name: transport.MethodName(transport.MethodWebSocket), Method: transport.MethodWebSocket},
		}
		srv := admin.New(admin.Config{
			DeviceID:    s.cfg.DeviceID,
			Addr:        s.cfg.AdminAddr,
			Token:       s.cfg.AdminToken,
			CorsOrigins: s.cfg.CorsOrigins,
		}, s.engine, s.router, methods, s.regs)
		run("admin", srv.ListenAndServe)
	}

	var out error
	select {
	case <-ctx.Done():
	case out = <-errs:
		log.Error().Err(out).Msg("device.Service.serve")
	}
	cancel()
	wg.Wait()
	log.Info().Str("device", s.cfg.DeviceID).Msg("device.Service.serve shutdown")
	return out
}

func (s *Service) websocketMux(ws http.Handler) http.Handler {
	path := s.cfg.Transport.WebSocketPath
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, ws)
	return mux
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("device.Service websocket listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
