package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsenet/pulse-server/internal/auth"
	"github.com/pulsenet/pulse-server/internal/config"
	"github.com/pulsenet/pulse-server/internal/core"
	"github.com/pulsenet/pulse-server/internal/metrics"
	"github.com/pulsenet/pulse-server/internal/store"
)

// NewServer builds the HTTP server: REST API, metrics and the realtime
// WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(hub, st, logger)
	wsHandler := NewWSHandler(hub, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/users/search", userHandlers.SearchUsers)
	authed.GET("/chats", messageHandlers.ListChats)
	authed.GET("/messages/:userID", messageHandlers.ListConversation)
	authed.POST("/messages/:userID", messageHandlers.SendMessage)
	authed.POST("/messages/:userID/read", messageHandlers.MarkRead)

	router.GET("/ws", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
