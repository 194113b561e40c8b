package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/services"
)

type ScopeHandler struct {
	scoper services.ScoperService
	search services.SearchService
	log    *logger.Logger
}

func NewScopeHandler(scoper services.ScoperService, search services.SearchService, baseLog *logger.Logger) *ScopeHandler {
	return &ScopeHandler{
		scoper: scoper,
		search: search,
		log:    baseLog.With("handler", "ScopeHandler"),
	}
}

func (h *ScopeHandler) Resolve(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req struct {
		TagIDs []string `json:"tag_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tagIDs, err := parseUUIDs(req.TagIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag_ids"})
		return
	}
	scope, err := h.scoper.Resolve(c.Request.Context(), actor, tagIDs)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, scope)
}

func (h *ScopeHandler) Search(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	var req struct {
		TagIDs []string `json:"tag_ids"`
		Query  string   `json:"query"`
		TopK   int      `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tagIDs, err := parseUUIDs(req.TagIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag_ids"})
		return
	}
	hits, err := h.search.Search(c.Request.Context(), actor, tagIDs, req.Query, req.TopK)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
