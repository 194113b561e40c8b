package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/services"
	"github.com/docscope/docscope-backend/internal/types"
)

type TagHandler struct {
	tags services.TagService
	log  *logger.Logger
}

func NewTagHandler(tags services.TagService, baseLog *logger.Logger) *TagHandler {
	return &TagHandler{tags: tags, log: baseLog.With("handler", "TagHandler")}
}

func (h *TagHandler) Create(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tag, err := h.tags.Create(c.Request.Context(), actor, req.Name, types.TagKind(req.Kind))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *TagHandler) Get(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	tag, err := h.tags.Get(c.Request.Context(), actor, tagID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *TagHandler) List(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tags, err := h.tags.List(c.Request.Context(), actor)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *TagHandler) Delete(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	if err := h.tags.Delete(c.Request.Context(), actor, tagID); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
