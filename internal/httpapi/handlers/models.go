package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
)

type selectModelReq struct {
	Model string `json:"model" binding:"required"`
}

func (h *Handler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()
	common.OK(c, gin.H{
		"models":        h.Selector.List(ctx),
		"current_model": h.Selector.Current(ctx),
	})
}

func (h *Handler) SelectModel(c *gin.Context) {
	var req selectModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := h.Selector.Select(c.Request.Context(), req.Model); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"current_model": h.Selector.Current(c.Request.Context())})
}

func (h *Handler) CurrentModel(c *gin.Context) {
	common.OK(c, gin.H{"current_model": h.Selector.Current(c.Request.Context())})
}
