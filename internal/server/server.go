// Package server owns the local HTTP status surface: session snapshots,
// cancellation, health, and prometheus metrics.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wardlink/signover/internal/config"
	"github.com/wardlink/signover/internal/observability"
	"github.com/wardlink/signover/internal/transfer"
)

type Server struct {
	addr      string
	startedAt time.Time
	router    *gin.Engine

	sender   *transfer.Sender
	receiver *transfer.Receiver
}

func New(cfg config.ServerConfig, sender *transfer.Sender, receiver *transfer.Receiver) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(log.Logger))
	router.Use(observability.RequestMetricsMiddleware())
	if len(cfg.CorsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		addr:      cfg.Addr,
		startedAt: time.Now(),
		router:    router,
		sender:    sender,
		receiver:  receiver,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run() error {
	log.Info().Str("addr", s.addr).Msg("status server listening")
	return s.router.Run(s.addr)
}
