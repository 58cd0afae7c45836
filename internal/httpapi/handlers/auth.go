package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-backend/internal/models"
)

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.Auth.RevokeSession(c.Request.Context(), c.GetString(middleware.TokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"logged_out": true})
}

func (h *Handler) Me(c *gin.Context) {
	common.OK(c, gin.H{"user": middleware.PrincipalFrom(c)})
}

type createUserReq struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     string  `json:"role"`
	Email    *string `json:"email"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	u, err := h.Auth.CreateAccount(c.Request.Context(), auth.CreateAccountParams{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Email:    req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"user": u})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Auth.ListAccounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"users": users, "total": len(users)})
}

type setActiveReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *Handler) SetUserActive(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "id must be an integer")
		return
	}
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if p := middleware.PrincipalFrom(c); p.UserID == uid && !*req.IsActive {
		common.Fail(c, http.StatusBadRequest, 10002, "cannot deactivate yourself")
		return
	}
	if err := h.Auth.SetActive(c.Request.Context(), uid, *req.IsActive); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"user_id": uid, "is_active": *req.IsActive})
}

// MyConversations lists the caller's conversations. Admins see every
// conversation, or one user's with ?user_id=.
func (h *Handler) MyConversations(c *gin.Context) {
	ctx := c.Request.Context()
	p := middleware.PrincipalFrom(c)

	var (
		ids []int64
		err error
	)
	switch q := c.Query("user_id"); {
	case p.IsAdmin() && q != "":
		uid, perr := strconv.ParseUint(q, 10, 64)
		if perr != nil {
			badRequest(c, "user_id must be an integer")
			return
		}
		ids, err = h.Memory.ListConversationIDsByUser(ctx, uid)
	case p.IsAdmin():
		ids, err = h.Memory.ListConversationIDs(ctx)
	default:
		ids, err = h.Memory.ListConversationIDsByUser(ctx, p.UserID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": ids, "total": len(ids)})
}

func (h *Handler) ConversationTranscript(c *gin.Context) {
	id, ok := h.readable(c)
	if !ok {
		return
	}
	msgs, err := h.Memory.Transcript(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": id, "messages": msgs, "total": len(msgs)})
}
