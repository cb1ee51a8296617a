package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/LovationAdmin/advisor-api/middleware"
	"github.com/LovationAdmin/advisor-api/services"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	Log services.ConversationLog
}

func NewConversationHandler(conversations services.ConversationLog) *ConversationHandler {
	return &ConversationHandler{Log: conversations}
}

func (h *ConversationHandler) ListConversations(c *gin.Context) {
	conversations, err := h.Log.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		log.Printf("[Conversations] ❌ %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetMessages returns the visible history; decision messages stay hidden.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	messages, err := h.Log.Messages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if errors.Is(err, services.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		log.Printf("[Conversations] ❌ %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
