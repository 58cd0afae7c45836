package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
)

func (h *Handler) UploadFile(c *gin.Context) {
	convID, err := strconv.ParseInt(c.PostForm("conversation_id"), 10, 64)
	if err != nil {
		badRequest(c, "conversation_id must be an integer")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file required")
		return
	}
	if fh.Size > h.Uploads.MaxBytes() {
		common.Fail(c, http.StatusRequestEntityTooLarge, 41301, "upload exceeds limit")
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	info, err := h.Uploads.Save(convID, fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Logger.Info("file uploaded", "conversation_id", convID, "filename", info.Filename, "size", info.Size)
	common.OK(c, info)
}

func (h *Handler) ListFiles(c *gin.Context) {
	convID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	files, err := h.Uploads.List(convID)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": convID, "files": files, "total": len(files)})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	convID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	name := c.Param("filename")
	if err := h.Uploads.Delete(convID, name); err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"conversation_id": convID, "filename": name, "deleted": true})
}
