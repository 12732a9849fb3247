package health

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const shutdownTimeout = 5 * time.Second

// StatsFunc returns the JSON body served at GET /stats.
type StatsFunc func() any

// Server answers liveness probes. Every method and path other than GET /stats
// returns 200 "OK" while the process is up.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

// New builds the liveness server on addr. Every unrouted request gets 200 OK;
// GET /stats is served only when stats is non-nil.
func New(addr string, stats StatsFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if stats != nil {
		r.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, stats())
		})
	}
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the routes for in-process use.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.srv.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)
	go func() {
		logs.Infof("health server listening on %s", ln.Addr())
		serverErr <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "health server shutdown")
		}
		if err := <-serverErr; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-serverErr:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	}
}
