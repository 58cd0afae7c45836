package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-backend/internal/memory"
)

// readable parses :id and checks the caller may see that conversation.
func (h *Handler) readable(c *gin.Context) (int64, bool) {
	id, ok := int64Param(c, "id")
	if !ok {
		return 0, false
	}
	if err := h.Chat.CanRead(c.Request.Context(), middleware.PrincipalFrom(c), id); err != nil {
		h.fail(c, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) memoryType(c *gin.Context) (memory.MemoryType, bool) {
	typ, err := memory.ParseMemoryType(c.Query("memory_type"))
	if err != nil {
		h.fail(c, err)
		return "", false
	}
	return typ, true
}

func (h *Handler) ListConversations(c *gin.Context) {
	ids, err := h.Memory.ListConversationIDs(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": ids, "total": len(ids)})
}

func (h *Handler) Messages(c *gin.Context) {
	id, ok := h.readable(c)
	if !ok {
		return
	}
	typ, ok := h.memoryType(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.Memory.Read(c.Request.Context(), id, limit, typ)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "messages": msgs, "total": len(msgs)})
}

func (h *Handler) Statistics(c *gin.Context) {
	id, ok := h.readable(c)
	if !ok {
		return
	}
	stats, err := h.Memory.Statistics(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "statistics": stats})
}

func (h *Handler) Search(c *gin.Context) {
	id, ok := h.readable(c)
	if !ok {
		return
	}
	keyword := strings.TrimSpace(c.Query("keyword"))
	if keyword == "" {
		badRequest(c, "keyword required")
		return
	}
	typ, ok := h.memoryType(c)
	if !ok {
		return
	}

	msgs, err := h.Memory.Search(c.Request.Context(), id, keyword, typ)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{
		"conversation_id": id,
		"keyword":         keyword,
		"results":         msgs,
		"total":           len(msgs),
	})
}

func (h *Handler) MemoryTypes(c *gin.Context) {
	counts, err := h.Memory.TypeCounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"types": memory.AllTypes, "counts": counts})
}

func (h *Handler) Clear(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.Chat.CanModify(c.Request.Context(), middleware.PrincipalFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	scope := memory.ClearScope{ConversationID: &id}
	if c.Query("memory_type") != "" {
		typ, ok := h.memoryType(c)
		if !ok {
			return
		}
		scope.Type = &typ
	}

	n, err := h.Memory.Clear(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "deleted": n})
}

func (h *Handler) ClearAll(c *gin.Context) {
	n, err := h.Memory.Clear(c.Request.Context(), memory.ClearScope{})
	if err != nil {
		h.fail(c, err)
		return
	}
	if p := middleware.PrincipalFrom(c); p != nil {
		h.Logger.Warn("all memory cleared", "user_id", p.UserID, "deleted", n)
	}
	common.OK(c, gin.H{"deleted": n})
}
