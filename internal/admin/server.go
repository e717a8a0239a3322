// Package admin serves the relay's operator HTTP surface and the WebSocket
// gateway that feeds browser clients into the same controller as TCP clients.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/chatrelay/internal/observability"
	"github.com/danmuck/chatrelay/internal/relay"
	"github.com/danmuck/chatrelay/internal/transport/wsframe"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	relay    *relay.Controller
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(id, addr string, ctrl *relay.Controller, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		relay:    ctrl,
		router:   r,
		upgrader: wsframe.Upgrader(),
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		ready := s.relay.Running()
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":    ready,
			"phase":    string(s.relay.Phase()),
			"listen":   s.relay.Addr(),
			"sessions": s.relay.Registry().Len(),
		})
	})

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": s.relay.Sessions(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ws", s.handleWebSocket)
}

// handleWebSocket upgrades the request and hands the connection to the relay,
// which runs the usual name handshake over it.
func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.relay.Running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": relay.ErrNotRunning.Error()})
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("admin ws upgrade failed")
		return
	}
	cfg := s.relay.Config()
	conn := wsframe.NewConn(ws, cfg.Limits)
	conn.SetWriteTimeout(cfg.WriteTimeout)
	if err := s.relay.ServeTransport(conn, relay.TransportWebSocket); err != nil {
		_ = conn.Close()
	}
}

// Serve listens on Addr until ctx is done, then shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Str("node", s.ID).Msg("admin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
