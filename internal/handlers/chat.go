package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/chat"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(chatSvc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatSvc}
}

type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

type SendMessageRequest struct {
	Content      string  `json:"content"`
	SharedPostID *string `json:"shared_post_id"`
}

// GetConversations lists the caller's conversations, most recent activity
// first.
func (h *ChatHandler) GetConversations(c *gin.Context) {
	conversations, err := h.chat.ListConversations(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	caller := callerID(c)
	if req.ParticipantID == caller {
		respondError(c, apperr.NewInvalid("cannot create conversation with yourself"))
		return
	}

	id, err := h.chat.StartOrGetConversation(c.Request.Context(), caller, req.ParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	messages, err := h.chat.ListMessages(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), callerID(c), c.Param("id"), req.Content, req.SharedPostID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead always answers 200; a caller outside the conversation gets
// success=false.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	receipt, err := h.chat.MarkRead(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	count, err := h.chat.UnreadCount(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
