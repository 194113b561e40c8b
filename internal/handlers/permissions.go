package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/services"
	"github.com/docscope/docscope-backend/internal/types"
)

type PermissionHandler struct {
	perms services.PermissionService
	log   *logger.Logger
}

func NewPermissionHandler(perms services.PermissionService, baseLog *logger.Logger) *PermissionHandler {
	return &PermissionHandler{perms: perms, log: baseLog.With("handler", "PermissionHandler")}
}

func (h *PermissionHandler) Grant(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Level  string `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	perm, err := h.perms.Grant(c.Request.Context(), nil, actor, tagID, userID, types.PermissionLevel(req.Level))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, perm)
}

func (h *PermissionHandler) Revoke(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}
	if err := h.perms.Revoke(c.Request.Context(), nil, actor, tagID, userID); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *PermissionHandler) List(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	perms, err := h.perms.ListByTag(c.Request.Context(), nil, actor, tagID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}
