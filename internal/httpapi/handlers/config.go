package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/memory"
)

func (h *Handler) AgentSettings(c *gin.Context) {
	common.OK(c, gin.H{
		"agent_name":               h.Cfg.AgentName,
		"agent_mode":               h.Cfg.AgentMode,
		"current_model":            h.Selector.Current(c.Request.Context()),
		"max_turns":                h.Cfg.DefaultMaxTurns,
		"temperature":              h.Cfg.Temperature,
		"top_p":                    h.Cfg.TopP,
		"chat_context_window_size": h.Cfg.ChatContextWindowSize,
		"upload_max_bytes":         h.Cfg.UploadMaxBytes,
	})
}

func (h *Handler) MemoryTypeConfig(c *gin.Context) {
	common.OK(c, gin.H{"memory_types": memory.AllTypes, "default": memory.TypeChat})
}
