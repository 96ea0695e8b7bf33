// Package admin serves the operator HTTP interface: pair and watch
// registration, rank overrides, leaderboard setup, status and metrics.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage"
)

// LeaderboardCreator posts a fresh leaderboard message.
type LeaderboardCreator interface {
	Create(ctx context.Context) (string, int, error)
}

// PriceSource exposes the cached TON/USD price.
type PriceSource interface {
	Cached() (float64, bool)
}

// Options configures the admin server.
type Options struct {
	Registry    *state.Registry
	Events      storage.BuyEventStore // optional
	Leaderboard LeaderboardCreator    // optional
	Prices      PriceSource           // optional
	// OnPairsChanged is called after pairs or watch entries change so
	// pollers can pick them up without waiting for their interval.
	OnPairsChanged func()
	Token          string
	Addr           string
	Logger         *zap.Logger
	Now            func() time.Time
}

// Server is the operator HTTP interface.
type Server struct {
	registry    *state.Registry
	events      storage.BuyEventStore
	leaderboard LeaderboardCreator
	prices      PriceSource
	onChange    func()
	token       string
	addr        string
	logger      *zap.Logger
	now         func() time.Time
	started     time.Time
	engine      *gin.Engine
}

// New creates the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		registry:    opts.Registry,
		events:      opts.Events,
		leaderboard: opts.Leaderboard,
		prices:      opts.Prices,
		onChange:    opts.OnPairsChanged,
		token:       opts.Token,
		addr:        opts.Addr,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("admin")
	if s.now == nil {
		s.now = time.Now
	}
	if s.onChange == nil {
		s.onChange = func() {}
	}
	s.started = s.now()
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/", s.auth())
	{
		api.GET("/status", s.status)
		api.GET("/stats/buys", s.buyStats)

		pairs := api.Group("/pairs")
		pairs.GET("", s.listPairs)
		pairs.POST("", s.addPair)
		pairs.DELETE("/:id", s.deletePair)
		pairs.PUT("/:id/telegram", s.setPairTelegram)
		pairs.DELETE("/:id/base-side", s.clearBaseSide)

		watch := api.Group("/watch")
		watch.GET("", s.listWatch)
		watch.POST("", s.addWatch)
		watch.PATCH("/:id", s.updateWatch)
		watch.POST("/:id/approve", s.approveWatch)
		watch.DELETE("/:id", s.deleteWatch)

		ranks := api.Group("/ranks")
		ranks.GET("", s.listRanks)
		ranks.PUT("/:symbol", s.setRank)
		ranks.DELETE("/:symbol", s.clearRank)

		api.POST("/leaderboard", s.createLeaderboard)
		api.PUT("/leaderboard", s.setLeaderboard)
	}
	return r
}

// auth requires the operator bearer token. Without a configured token the
// operator routes are closed.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			abort(c, http.StatusForbidden, "admin token not configured")
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
