package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/chat"
	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/memory"
	"github.com/suPer8Hu/agent-backend/internal/selector"
	"github.com/suPer8Hu/agent-backend/internal/uploads"
)

type Handler struct {
	Cfg      config.Config
	Logger   *slog.Logger
	Auth     *auth.Service
	Memory   *memory.Repo
	Chat     *chat.Service
	Selector *selector.Selector
	Uploads  *uploads.Store
}

func NewHandler(cfg config.Config, logger *slog.Logger, authSvc *auth.Service, mem *memory.Repo, chatSvc *chat.Service, sel *selector.Selector, up *uploads.Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Cfg:      cfg,
		Logger:   logger,
		Auth:     authSvc,
		Memory:   mem,
		Chat:     chatSvc,
		Selector: sel,
		Uploads:  up,
	}
}

type errorMapping struct {
	target error
	status int
	code   int
}

var errorMappings = []errorMapping{
	{chat.ErrJobNotFound, http.StatusNotFound, 40402},
	{memory.ErrNotFound, http.StatusNotFound, 40401},
	{auth.ErrUserNotFound, http.StatusNotFound, 40403},
	{uploads.ErrNotFound, http.StatusNotFound, 40404},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, 40102},
	{auth.ErrInvalidSession, http.StatusUnauthorized, 40101},
	{chat.ErrForbidden, http.StatusForbidden, 40301},
	{uploads.ErrOutsideRoot, http.StatusForbidden, 40302},
	{auth.ErrDuplicateUsername, http.StatusConflict, 40901},
	{uploads.ErrTooLarge, http.StatusRequestEntityTooLarge, 41301},
	{auth.ErrInvalidRole, http.StatusBadRequest, 10002},
	{auth.ErrInvalidInput, http.StatusBadRequest, 10002},
	{memory.ErrInvalidType, http.StatusBadRequest, 10002},
	{memory.ErrEmptyKey, http.StatusBadRequest, 10002},
	{chat.ErrEmptyPrompt, http.StatusBadRequest, 10002},
	{chat.ErrIdempotencyKey, http.StatusBadRequest, 10003},
	{selector.ErrEmptyModel, http.StatusBadRequest, 10002},
	{uploads.ErrInvalidName, http.StatusBadRequest, 10002},
	{chat.ErrNoQueue, http.StatusServiceUnavailable, 50301},
	{chat.ErrNoStreaming, http.StatusServiceUnavailable, 50302},
}

// fail writes the envelope for err. Unmapped errors become 500 and are logged
// with their goerr values.
func (h *Handler) fail(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			common.Fail(c, m.status, m.code, m.target.Error())
			return
		}
	}
	h.Logger.Error("request failed",
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
		"error", err)
	common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
}

func badRequest(c *gin.Context, msg string) {
	common.Fail(c, http.StatusBadRequest, 10001, msg)
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "healthy", "service": h.Cfg.AgentName})
}

func (h *Handler) Root(c *gin.Context) {
	common.OK(c, gin.H{"message": "agent backend is running", "status": "healthy"})
}
