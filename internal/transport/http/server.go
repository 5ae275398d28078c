package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/auth"
	"github.com/fieldlab/arena-server/internal/config"
	"github.com/fieldlab/arena-server/internal/core"
)

// NewServer builds the HTTP server: the REST API and the WebSocket bridge.
func NewServer(ch *core.Channel, router *core.Router, authService *auth.Service,
	adminHub, playerHub *SessionHub, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := NewAPIHandlers(ch, authService, logger)

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	engine.POST("/api/login", api.Login)
	engine.POST("/api/claim", api.Claim)
	engine.GET("/api/rooms", api.ListRooms)

	authed := engine.Group("/api", AuthMiddleware(authService, logger), RequireAdmin())
	authed.POST("/rooms", api.CreateRoom)
	authed.DELETE("/rooms/:name", api.DestroyRoom)
	authed.GET("/clients", api.ListClients)

	ws := NewWSHandler(ch, router, authService, adminHub, playerHub, logger)
	engine.GET("/ws", gin.WrapH(ws))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
