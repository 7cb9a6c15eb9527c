package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/config"
)

// Handlers groups the route handlers the server exposes. Optional
// surfaces are skipped when their handler is nil.
type Handlers struct {
	Connection *ConnectionHandlers
	Memory     *MemoryHandlers
	Admin      *AdminHandlers
	Webhook    *WebhookHandlers
}

// NewServer builds the HTTP server with all configured routes.
func NewServer(cfg config.Config, handlers Handlers, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	router.POST("/api/connection-details", handlers.Connection.ResolveConnection)

	if handlers.Webhook != nil {
		router.POST("/webhooks/livekit", handlers.Webhook.Receive)
	}

	if handlers.Memory != nil {
		agentAuth := AgentKeyMiddleware(cfg.AgentAPIKey, logger)

		memoryGroup := router.Group("/api/memory", agentAuth)
		memoryGroup.POST("/sessions", handlers.Memory.StartSession)
		memoryGroup.POST("/turns", handlers.Memory.LogTurn)
		memoryGroup.GET("/recall", handlers.Memory.Recall)
		memoryGroup.GET("/knowledge", handlers.Memory.Knowledge)
		memoryGroup.GET("/progress", handlers.Memory.GetProgress)
		memoryGroup.PUT("/progress", handlers.Memory.UpdateProgress)

		router.GET("/api/agent/instructions", agentAuth, handlers.Memory.Instructions)
	}

	if handlers.Admin != nil {
		router.POST("/api/admin/login", handlers.Admin.Login)

		adminGroup := router.Group("/api/admin", AdminAuthMiddleware(handlers.Admin.auth, logger))
		adminGroup.GET("/stats", handlers.Admin.Stats)
		adminGroup.GET("/users", handlers.Admin.ListUsers)
		adminGroup.GET("/users/:username", handlers.Admin.UserDetail)
		adminGroup.DELETE("/users/:id", handlers.Admin.DeleteUser)
		adminGroup.GET("/rooms", handlers.Admin.ListRooms)
		adminGroup.GET("/rooms/:name/participants", handlers.Admin.RoomParticipants)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
