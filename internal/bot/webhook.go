package bot

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailscale/accessbot/internal/idgen"
)

// WebhookHandler handles incoming interaction callbacks from the chat
// platform. Every response is either a success payload or an error
// object; the platform decides redelivery.
type WebhookHandler struct {
	bot    *Bot
	logger *slog.Logger
	secret string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(bot *Bot, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		bot:    bot,
		logger: logger,
		secret: secret,
	}
}

// HandleRequestOpen processes a new workflow execution
func (h *WebhookHandler) HandleRequestOpen(c *gin.Context) {
	in, ok := h.parse(c)
	if !ok {
		return
	}

	result, err := h.bot.HandleRequestOpen(c.Request.Context(), in)
	if err != nil {
		h.logger.Error("Failed to open request form",
			"execution_id", in.ExecutionID,
			"error", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleInteraction processes an interaction callback
func (h *WebhookHandler) HandleInteraction(c *gin.Context) {
	in, ok := h.parse(c)
	if !ok {
		return
	}

	result, err := h.bot.HandleInteraction(c.Request.Context(), in)
	if err != nil {
		h.logger.Error("Failed to handle interaction",
			"type", in.Type,
			"action_id", in.ActionID,
			"execution_id", in.ExecutionID,
			"error", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// parse verifies the shared secret and decodes the interaction payload.
// On failure it writes the response itself and returns ok=false.
func (h *WebhookHandler) parse(c *gin.Context) (*Interaction, bool) {
	if h.secret != "" {
		token := c.GetHeader("X-Accessbot-Secret")
		if token != h.secret {
			h.logger.Warn("Invalid webhook secret token",
				"remote_addr", c.ClientIP(),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid secret token",
			})
			return nil, false
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request",
		})
		return nil, false
	}

	in, err := ParseInteraction(body)
	if err != nil {
		h.logger.Error("Failed to parse interaction", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid interaction format",
		})
		return nil, false
	}

	// Completion signals and log lines key on the execution id; mint
	// one when the platform sends none.
	if in.ExecutionID == "" {
		in.ExecutionID = idgen.NewExecution()
	}

	return in, true
}
