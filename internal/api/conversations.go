package api

import (
	"net/http"

	"github.com/matheus-sup/CRM-sub000/internal/bot"
	"github.com/matheus-sup/CRM-sub000/internal/models"
	"github.com/matheus-sup/CRM-sub000/internal/store"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	Store  *store.Store
	Engine *bot.Engine
}

func NewConversationHandler(st *store.Store, engine *bot.Engine) *ConversationHandler {
	return &ConversationHandler{Store: st, Engine: engine}
}

type conversationListItem struct {
	models.Conversation
	LastMessage *models.Message `json:"last_message"`
}

// GetConversations lists conversations ordered by recent activity, each with
// its newest message as a preview
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	convs, err := h.Store.ListConversations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]conversationListItem, 0, len(convs))
	for _, conv := range convs {
		last, err := h.Store.LastMessage(c.Request.Context(), conv.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items = append(items, conversationListItem{Conversation: conv, LastMessage: last})
	}

	c.JSON(http.StatusOK, items)
}

// GetMessages returns the full message log of one conversation
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	phone := c.Param("phone")

	conv, err := h.Store.GetConversation(c.Request.Context(), phone)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	msgs, err := h.Store.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs})
}

// ResumeBot hands a conversation back to the bot after a human takeover
func (h *ConversationHandler) ResumeBot(c *gin.Context) {
	phone := c.Param("phone")

	if err := h.Engine.ResumeBot(c.Request.Context(), phone); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Bot resumed", "phone_number": phone})
}

// SendMessage lets a human agent reply inside a conversation
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	phone := c.Param("phone")

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Engine.SendManual(c.Request.Context(), phone, req.Content); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message sent"})
}
