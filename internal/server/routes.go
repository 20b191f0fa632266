package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": "signover",
			"version": "0.1.0",
		})
	})

	s.router.GET("/session/sender", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session":  s.sender.Status(),
			"progress": s.sender.Progress(),
		})
	})

	s.router.GET("/session/receiver", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session": s.receiver.Status(),
		})
	})

	s.router.POST("/session/sender/cancel", func(c *gin.Context) {
		s.sender.Cancel()
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
	})

	s.router.POST("/session/receiver/cancel", func(c *gin.Context) {
		s.receiver.Cancel()
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
