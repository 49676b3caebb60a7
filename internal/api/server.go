package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"leapScope/internal/cache"
	"leapScope/internal/pipeline"
)

// Runner executes aggregation requests; the pipeline orchestrator is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Quoter supplies the USD quote used for response annotation.
type Quoter interface {
	USD(ctx context.Context) (decimal.Decimal, error)
}

// Options carries the static server settings.
type Options struct {
	ListenAddr string
	Chains     []string
}

// Server is the HTTP surface over the aggregation pipeline.
type Server struct {
	opts   Options
	runner Runner
	store  *cache.Store
	quoter Quoter
	logger *zap.Logger
	engine *gin.Engine
	server *http.Server
}

// NewServer wires the routes. The cache store and quoter are optional;
// a nil store disables response caching, a nil quoter drops USD fields.
func NewServer(runner Runner, store *cache.Store, quoter Quoter, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))

	s := &Server{
		opts:   opts,
		runner: runner,
		store:  store,
		quoter: quoter,
		logger: logger,
		engine: engine,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/leaderboard", s.leaderboard)
		api.GET("/profile/:address/games", s.profileGames)
		api.GET("/profile/:address/referrals", s.profileReferrals)
	}
}

// Start begins serving and returns once the listener is up.
func (s *Server) Start() error {
	addr := s.opts.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	s.logger.Info("http server starting", zap.String("addr", addr))
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// shutdownGrace bounds how long in-flight requests may run during Stop.
const shutdownGrace = 10 * time.Second

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
