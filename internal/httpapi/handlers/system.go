package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
)

type saveSystemReq struct {
	Key      string  `json:"key" binding:"required"`
	Content  string  `json:"content" binding:"required"`
	Metadata *string `json:"metadata"`
}

type updateSystemReq struct {
	Content  *string `json:"content"`
	Metadata *string `json:"metadata"`
}

func (h *Handler) ListSystem(c *gin.Context) {
	entries, err := h.Memory.ListSystem(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"memories": entries, "total": len(entries)})
}

func (h *Handler) SystemSummary(c *gin.Context) {
	sum, err := h.Memory.SystemSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, sum)
}

func (h *Handler) GetSystem(c *gin.Context) {
	e, err := h.Memory.GetSystem(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, e)
}

func (h *Handler) SaveSystem(c *gin.Context) {
	var req saveSystemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	e, err := h.Memory.UpsertSystem(c.Request.Context(), req.Key, req.Content, req.Metadata)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, e)
}

func (h *Handler) UpdateSystem(c *gin.Context) {
	var req updateSystemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Content == nil && req.Metadata == nil {
		badRequest(c, "nothing to update")
		return
	}
	e, err := h.Memory.UpdateSystem(c.Request.Context(), c.Param("key"), req.Content, req.Metadata)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, e)
}

func (h *Handler) DeleteSystem(c *gin.Context) {
	key := c.Param("key")
	n, err := h.Memory.DeleteSystem(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"key": key, "deleted": n})
}
