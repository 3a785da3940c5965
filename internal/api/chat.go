package api

import (
	"net/http"

	"github.com/matheus-sup/CRM-sub000/internal/bot"
	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"

	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the bot configuration and the engine operations
// (toggle, simulate, sync) to the admin surface.
type ChatHandler struct {
	Store  *store.Store
	Engine *bot.Engine
}

func NewChatHandler(st *store.Store, engine *bot.Engine) *ChatHandler {
	return &ChatHandler{Store: st, Engine: engine}
}

// GetConfig returns the singleton bot configuration
func (h *ChatHandler) GetConfig(c *gin.Context) {
	cfg, err := h.Store.GetConfig(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// SaveConfig validates and saves the bot configuration. Changes take effect
// on the next inbound message; a message already past its snapshot point is
// unaffected.
func (h *ChatHandler) SaveConfig(c *gin.Context) {
	var cfg models.ChatConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bot.ValidateConfig(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.SaveConfig(c.Request.Context(), &cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// ToggleBot flips the global bot switch and returns the new value
func (h *ChatHandler) ToggleBot(c *gin.Context) {
	cfg, err := h.Store.GetConfig(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cfg.BotEnabled = !cfg.BotEnabled
	if err := h.Store.SaveConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bot_enabled": cfg.BotEnabled})
}

// Simulate previews how the bot would answer a message at a given stage
func (h *ChatHandler) Simulate(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
		Stage   string `json:"stage"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Engine.Simulate(c.Request.Context(), req.Message, req.Stage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SyncChats imports chat history from the Evolution instance
func (h *ChatHandler) SyncChats(c *gin.Context) {
	result, err := h.Engine.SyncEvolutionChats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
