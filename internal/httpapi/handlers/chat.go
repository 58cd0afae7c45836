package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/chat"
	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/middleware"
)

type askReq struct {
	Message        string `json:"message" binding:"required"`
	ConversationID *int64 `json:"conversation_id"`
	MaxTurns       int    `json:"max_turns"`
}

func (h *Handler) bindAsk(c *gin.Context) (chat.AskInput, bool) {
	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return chat.AskInput{}, false
	}
	return chat.AskInput{
		ConversationID: req.ConversationID,
		Prompt:         req.Message,
		MaxTurns:       req.MaxTurns,
		Principal:      middleware.PrincipalFrom(c),
	}, true
}

func (h *Handler) Ask(c *gin.Context) {
	in, ok := h.bindAsk(c)
	if !ok {
		return
	}
	res, err := h.Chat.Ask(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) AskStream(c *gin.Context) {
	in, ok := h.bindAsk(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	convID, events, err := h.Chat.AskStream(ctx, in)
	if err != nil {
		h.fail(c, err)
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("start", gin.H{"type": "start", "conversation_id": convID})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Done {
				writeJSON("chunk", gin.H{"type": "chunk", "delta": ev.Delta})
				continue
			}
			if ev.Err != nil {
				h.Logger.Error("stream failed", "conversation_id", convID, "error", ev.Err)
				writeJSON("error", gin.H{"type": "error", "message": "generation failed"})
				return
			}
			writeJSON("done", gin.H{
				"type":            "done",
				"conversation_id": convID,
				"message_id":      ev.AssistantMessageID,
			})
			return

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) AskAsync(c *gin.Context) {
	in, ok := h.bindAsk(c)
	if !ok {
		return
	}
	job, created, err := h.Chat.EnqueueAsk(c.Request.Context(), in, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{
		"job_id":          job.ID,
		"conversation_id": job.ConversationID,
		"status":          job.Status,
		"created":         created,
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}
	j, err := h.Chat.GetJob(c.Request.Context(), middleware.PrincipalFrom(c), jobID)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"job": j})
}

type switchReq struct {
	ConversationID *int64 `json:"conversation_id" binding:"required"`
}

// Switch validates a conversation id and reports on it. The server keeps no
// current conversation; clients pass the id on every call.
func (h *Handler) Switch(c *gin.Context) {
	var req switchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	h.writeStatistics(c, *req.ConversationID)
}

func (h *Handler) NewConversation(c *gin.Context) {
	conv, err := h.Chat.NewConversation(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": conv.ID})
}

func (h *Handler) Current(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	h.writeStatistics(c, id)
}

func (h *Handler) writeStatistics(c *gin.Context, conversationID int64) {
	ctx := c.Request.Context()
	if err := h.Chat.CanRead(ctx, middleware.PrincipalFrom(c), conversationID); err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.Chat.Summary(ctx, conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": conversationID, "statistics": stats})
}
