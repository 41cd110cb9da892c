package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/internal/service/relay"
	"github.com/iamasit07/connect4-remote/internal/transport/http/middleware"
	"github.com/iamasit07/connect4-remote/internal/transport/websocket"
	"github.com/iamasit07/connect4-remote/pkg/auth"
)

type RouterConfig struct {
	Service        *relay.Service
	Keys           *auth.Keys
	ConnManager    *websocket.ConnectionManager
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires the relay API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	games := NewGamesHandler(cfg.Service, cfg.Logger)
	wsHandler := websocket.NewHandler(cfg.Service, cfg.ConnManager, cfg.Logger)

	api := router.Group("/api/games")
	api.Use(middleware.APIKeyMiddleware(cfg.Keys, cfg.Logger))
	{
		api.POST("", games.Create)
		api.GET("/:id", games.Get)
		api.PUT("/:id", games.Update)
		api.DELETE("/:id", games.Delete)
		api.POST("/:id/join", games.Join)
		api.POST("/:id/reset", games.Reset)
		api.GET("/:id/subscribe", wsHandler.Subscribe)
	}
	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug().
			Str("component", "http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}
