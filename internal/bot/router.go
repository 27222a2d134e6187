package bot

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the bot router
type RouterConfig struct {
	Bot           *Bot
	WebhookSecret string
	Logger        *slog.Logger
}

// NewRouter creates and configures the Gin router for the bot webhook
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	webhookHandler := NewWebhookHandler(
		config.Bot,
		config.WebhookSecret,
		config.Logger,
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "UP",
			"service": "accessbot",
		})
	})

	router.POST("/chat/requests", webhookHandler.HandleRequestOpen)
	router.POST("/chat/interactions", webhookHandler.HandleInteraction)

	return router
}
