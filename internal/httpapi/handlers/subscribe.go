package handlers

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/subspace-chat/internal/common"
)

const writeWait = 10 * time.Second

// Subscribe upgrades to a websocket and streams the conversation's events as JSON.
func (h *Handler) Subscribe(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	convID := c.Param("id")
	if err := h.ChatSvc.ValidateConversationOwner(c.Request.Context(), uid, convID); err != nil {
		common.FailErr(c, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already answered the client
		log.Printf("[Handler] websocket upgrade failed conversation_id=%s err=%v", convID, err)
		return
	}
	defer conn.Close()

	events, cancel := h.Hub.Subscribe(convID)
	defer cancel()
	log.Printf("[Handler] subscribed user_id=%d conversation_id=%s", uid, convID)

	// the read loop only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Printf("[Handler] unsubscribed user_id=%d conversation_id=%s", uid, convID)
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[Handler] websocket write failed conversation_id=%s err=%v", convID, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
