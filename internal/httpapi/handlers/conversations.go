package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
)

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	convs, err := h.ChatSvc.ListConversations(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	common.OK(c, convs)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req chat.CreateConversationInput
	// an empty body creates an untitled conversation
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	conv, err := h.ChatSvc.CreateConversation(c.Request.Context(), uid, req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Created(c, conv)
}

// GetConversation returns the conversation with its messages in thread order.
func (h *Handler) GetConversation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	conv, err := h.ChatSvc.GetConversation(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	if conv.Messages == nil {
		conv.Messages = []chat.Message{}
	}
	common.OK(c, conv)
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req chat.UpdateConversationInput
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.ChatSvc.UpdateConversation(c.Request.Context(), uid, c.Param("id"), req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.ChatSvc.DeleteConversation(c.Request.Context(), uid, id); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": id})
}

func (h *Handler) CreateMessage(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req chat.CreateMessageInput
	if !bindJSON(c, &req) {
		return
	}
	req.ConversationID = c.Param("id")
	msg, err := h.ChatSvc.CreateMessage(c.Request.Context(), uid, req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Created(c, msg)
}

type updateMessageReq struct {
	Content string `json:"content"`
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req updateMessageReq
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.ChatSvc.UpdateMessage(c.Request.Context(), uid, c.Param("id"), req.Content)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), uid, id); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": id})
}

// GetShared serves a public conversation by share token without auth.
func (h *Handler) GetShared(c *gin.Context) {
	conv, err := h.ChatSvc.GetShared(c.Request.Context(), c.Param("token"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, conv)
}
