// Package api exposes the gateway over HTTP and websocket.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"perp-gateway/internal/auth"
	"perp-gateway/internal/events"
	"perp-gateway/internal/monitor"
	"perp-gateway/internal/order"
	"perp-gateway/internal/session"
	exchange "perp-gateway/pkg/exchanges/common"
)

// Server wires HTTP endpoints around the order engine.
type Server struct {
	Router   *gin.Engine
	Engine   *order.Engine
	Sessions *session.Resolver
	Info     exchange.InfoClient
	Auth     *auth.Service
	Bus      *events.Bus
	Metrics  *monitor.Metrics
	Log      *logrus.Entry
	Meta     SystemMeta

	opts    Options
	limiter *ipRateLimiter
}

// SystemMeta describes runtime status exposed on /health.
type SystemMeta struct {
	Venue   string `json:"venue"`
	DryRun  bool   `json:"dry_run"`
	Version string `json:"version"`
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	TokenTTL       time.Duration
}

// Deps are the collaborators every handler needs.
type Deps struct {
	Engine   *order.Engine
	Sessions *session.Resolver
	Info     exchange.InfoClient
	Auth     *auth.Service
	Bus      *events.Bus
	Metrics  *monitor.Metrics
	Log      *logrus.Entry
}

func NewServer(deps Deps, meta SystemMeta, opts Options) *Server {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Metrics == nil {
		deps.Metrics = monitor.NewMetrics()
	}
	if deps.Sessions != nil {
		registry := deps.Sessions.Registry()
		deps.Metrics.SetSessionStatsFunc(func() monitor.SessionStats {
			st := registry.Stats()
			return monitor.SessionStats{
				Sessions:     st.Sessions,
				Created:      st.Created,
				InitFailures: st.InitFailures,
				ShardCounts:  st.ShardCounts,
			}
		})
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(deps.Log, deps.Metrics))

	s := &Server{
		Router:   r,
		Engine:   deps.Engine,
		Sessions: deps.Sessions,
		Info:     deps.Info,
		Auth:     deps.Auth,
		Bus:      deps.Bus,
		Metrics:  deps.Metrics,
		Log:      deps.Log,
		Meta:     meta,
		opts:     opts,
		limiter:  newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
	r.Use(s.limiter.Middleware(deps.Log))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/positions/:wallet", s.getWalletPositions)
	s.Router.GET("/ws", s.AuthMiddleware(true), s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/metrics", s.getMetrics)
		api.GET("/markets/:asset", s.getMarketInfo)
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(s.AuthMiddleware(false))
		{
			protected.POST("/credentials", s.registerCredential)
			protected.POST("/orders", s.placeOrder)
			protected.POST("/orders/market", s.placeMarketOrder)
			protected.POST("/cancel/:asset/:order_id", s.cancelOrder)
			protected.DELETE("/close/:asset", s.closePosition)
			protected.GET("/positions", s.getPositions)
			protected.GET("/open_orders", s.getOpenOrders)
			protected.POST("/leverage", s.updateLeverage)
		}
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
	}).Handler(s.Router)
}

// HTTPServer builds the listener-facing server for addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"venue":       s.Meta.Venue,
		"dry_run":     s.Meta.DryRun,
		"version":     s.Meta.Version,
		"sessions":    s.Sessions.Registry().Len(),
		"subscribers": s.Bus.Subscribers(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
