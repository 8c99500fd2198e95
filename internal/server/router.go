package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter wires the API under /api/v1 and the ingestion stream at
// /sensor-stream.
func NewRouter(api *APIHandler, stream *Handler, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	v1 := router.Group("/api/v1")
	api.RegisterRoutes(v1)

	router.GET("/sensor-stream", gin.WrapH(stream))
	router.GET("/health", api.HandleHealth)
	return router
}

// requestLogger logs one line per request at debug, or warn for errors
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= 500 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
