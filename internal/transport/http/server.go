package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore-server/internal/config"
	"github.com/vovakirdan/chatcore-server/internal/core"
	"github.com/vovakirdan/chatcore-server/internal/store"
)

// NewServer builds the HTTP server: websocket endpoint plus the read-only query API.
func NewServer(hub *core.Hub, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	channels := NewChannelHandlers(st, cfg.HistoryLimit, logger)
	presence := NewPresenceHandlers(hub.Sessions())

	api := router.Group("/api")
	api.GET("/channels", channels.ListChannels)
	api.GET("/channels/:id/messages", channels.ListMessages)
	api.GET("/presence", presence.ListOnline)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
