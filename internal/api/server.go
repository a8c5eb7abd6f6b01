// Package api is the local HTTP surface a UI reads instead of screens
// talking to storage and the backend directly: session commands, the cached
// profile with retry-poll status, and the economy/leaderboard views.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"triviaa-companion/internal/backend"
	"triviaa-companion/internal/config"
	"triviaa-companion/internal/models"
	"triviaa-companion/internal/security"
	"triviaa-companion/internal/session"
	"triviaa-companion/internal/store"
)

type Server struct {
	log       *slog.Logger
	cfg       config.Config
	store     *store.Store
	handle    *session.Handle
	client    *backend.Client
	bootstrap *session.Bootstrap
	poller    *session.RetryPoller
	router    *gin.Engine
	limiter   *security.LimiterStore

	mu          sync.Mutex
	lastProfile *models.ProfileData // last successfully fetched profile view
}

func NewServer(log *slog.Logger, cfg config.Config, st *store.Store, handle *session.Handle, client *backend.Client, bs *session.Bootstrap, poller *session.RetryPoller) *Server {
	s := &Server{
		log:       log,
		cfg:       cfg,
		store:     st,
		handle:    handle,
		client:    client,
		bootstrap: bs,
		poller:    poller,
		router:    gin.New(),
		limiter:   security.NewLimiterStore(rate.Limit(30), 60, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.GET("/session", s.getSession)
		v1.POST("/session/signin", s.signIn)
		v1.POST("/session/register", s.register)
		v1.POST("/session/signout", s.signOut)

		v1.GET("/profile", s.getProfile)
		v1.PUT("/profile", s.updateProfile)
		v1.GET("/profile/retry", s.retryStatus)
		v1.POST("/profile/retry/cancel", s.cancelRetry)

		v1.GET("/coins", s.getCoins)
		v1.GET("/coins/transactions", s.getCoinTransactions)
		v1.GET("/points", s.getPoints)
		v1.GET("/points/transactions", s.getPointsTransactions)
		v1.GET("/leaderboard", s.getLeaderboard)
		v1.GET("/categories/popular", s.getPopularCategories)
		v1.GET("/games/recent", s.getRecentGames)

		v1.GET("/username-available/:username", s.usernameAvailable)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}
