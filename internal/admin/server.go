package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/observability"
	"github.com/danmuck/htlvc/internal/profile"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const version = "0.1.0"

var ErrBadTag = errors.New("admin: bad tag")

type Config struct {
	DeviceID    string
	Addr        string
	CorsOrigins []string
	// Token guards POST routes when set.
	Token string
}

// LinkStatus exposes outbound link state per transfer method.
type LinkStatus interface {
	Attached(method protocol.TransferMethod) bool
	BreakerState(method protocol.TransferMethod) string
}

// Method is a named transfer method reported by /ready.
type Method struct {
	Name   string
	Method protocol.TransferMethod
}

// Server is the HTTP control surface of a running device.
type Server struct {
	cfg     Config
	engine  *engine.Engine
	links   LinkStatus
	methods []Method
	regs    *profile.Registers
	started time.Time
	router  *gin.Engine
}

// New builds the admin router. links and regs may be nil.
func New(cfg Config, e *engine.Engine, links LinkStatus, methods []Method, regs *profile.Registers) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetrics(cfg.DeviceID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		engine:  e,
		links:   links,
		methods: methods,
		regs:    regs,
		started: time.Now(),
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"device":  s.cfg.DeviceID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		links := make([]LinkInfo, 0, len(s.methods))
		ready := s.engine != nil
		for _, m := range s.methods {
			info := LinkInfo{Name: m.Name, Method: uint8(m.Method), Breaker: gobreaker.StateClosed.String()}
			if s.links != nil {
				info.Attached = s.links.Attached(m.Method)
				info.Breaker = s.links.BreakerState(m.Method)
			}
			links = append(links, info)
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"device": s.cfg.DeviceID,
			"links":  links,
		})
	})

	s.router.GET("/tags", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tags": s.ListTags()})
	})

	s.router.GET("/registers", func(c *gin.Context) {
		out := map[string]string{}
		if s.regs != nil {
			for slot, v := range s.regs.Snapshot() {
				out[slot] = hex.EncodeToString(v)
			}
		}
		c.JSON(http.StatusOK, gin.H{"registers": out})
	})

	reports := s.router.Group("/reports")
	if s.cfg.Token != "" {
		reports.Use(requireToken(StaticToken(s.cfg.Token)))
	}
	reports.POST("/:tag", s.postReport)
}

// TagInfo is one dispatch table entry as listed by /tags.
type TagInfo struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

type LinkInfo struct {
	Name     string `json:"name"`
	Method   uint8  `json:"method"`
	Attached bool   `json:"attached"`
	Breaker  string `json:"breaker"`
}

func (s *Server) ListTags() []TagInfo {
	if s.engine == nil {
		return nil
	}
	entries := s.engine.Tags()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	out := make([]TagInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, TagInfo{Tag: fmt.Sprintf("0x%02x", e.Tag), Name: e.Name})
	}
	return out
}

type reportRequest struct {
	Value  string `json:"value"`
	Method uint8  `json:"method"`
}

func (s *Server) postReport(c *gin.Context) {
	tag, err := parseTag(c.Param("tag"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := hex.DecodeString(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("value: %v", err)})
		return
	}
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": protocol.ErrNotRegistered.Error()})
		return
	}

	if err := s.engine.SendReport(tag, value, protocol.TransferMethod(req.Method)); err != nil {
		c.JSON(reportStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status": "sent",
		"tag":    fmt.Sprintf("0x%02x", tag),
		"len":    len(value),
	})
}

func reportStatus(err error) int {
	switch {
	case errors.Is(err, protocol.ErrValueTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, protocol.ErrNotRegistered):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseTag accepts decimal or 0x-prefixed hex.
func parseTag(raw string) (byte, error) {
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTag, raw)
	}
	return byte(v), nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", s.cfg.Addr).Str("device", s.cfg.DeviceID).Msg("admin.Server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
