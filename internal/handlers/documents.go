package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/services"
	"github.com/docscope/docscope-backend/internal/types"
)

// maxUploadBytes bounds how much of a multipart body is buffered. Large
// media belongs in a resumable upload flow, which this service does not
// offer.
const maxUploadBytes = 64 << 20

type DocumentHandler struct {
	catalog   services.CatalogService
	ingestion services.IngestionService
	content   services.ContentService
	artifacts services.ArtifactService
	log       *logger.Logger
}

func NewDocumentHandler(
	catalog services.CatalogService,
	ingestion services.IngestionService,
	content services.ContentService,
	artifacts services.ArtifactService,
	baseLog *logger.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		catalog:   catalog,
		ingestion: ingestion,
		content:   content,
		artifacts: artifacts,
		log:       baseLog.With("handler", "DocumentHandler"),
	}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	tagIDs, err := parseUUIDList(c.PostForm("tag_ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag_ids"})
		return
	}
	retrievable := true
	if raw := c.PostForm("retrievable"); raw != "" {
		retrievable, err = strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid retrievable"})
			return
		}
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	if len(content) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	doc, err := h.ingestion.Upload(c.Request.Context(), services.UploadInput{
		Filename:    fileHeader.Filename,
		MimeType:    fileHeader.Header.Get("Content-Type"),
		OwnerID:     actor,
		TagIDs:      tagIDs,
		Content:     content,
		Retrievable: retrievable,
	})
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) Reupload(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	if len(content) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	doc, err := h.ingestion.Reupload(c.Request.Context(), actor, docID, content)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	doc, err := h.catalog.Get(c.Request.Context(), actor, docID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	tagIDs, err := parseUUIDList(c.Query("tag_ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag_ids"})
		return
	}
	filter := repos.DocumentFilter{
		TagIDs: tagIDs,
		Status: types.DocumentStatus(c.Query("status")),
	}
	docs, err := h.catalog.Find(c.Request.Context(), actor, filter)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) AttachTag(c *gin.Context) {
	h.tagLink(c, h.catalog.AttachTag)
}

func (h *DocumentHandler) DetachTag(c *gin.Context) {
	h.tagLink(c, h.catalog.DetachTag)
}

func (h *DocumentHandler) tagLink(c *gin.Context, op func(ctx context.Context, actorID, documentID, tagID uuid.UUID) error) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	tagID, ok := pathUUID(c, "tag_id")
	if !ok {
		return
	}
	if err := op(c.Request.Context(), actor, docID, tagID); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DocumentHandler) SetRetrievable(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	var req struct {
		Retrievable *bool `json:"retrievable"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Retrievable == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.catalog.SetRetrievable(c.Request.Context(), actor, docID, *req.Retrievable); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	if err := h.catalog.SoftDelete(c.Request.Context(), actor, docID); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DocumentHandler) Download(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	rc, doc, err := h.content.GetRaw(c.Request.Context(), actor, docID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, doc.SizeBytes, contentType, rc, nil)
}

func (h *DocumentHandler) Preview(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	preview, err := h.content.GetMarkdownPreview(c.Request.Context(), actor, docID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *DocumentHandler) ListArtifacts(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	// Visibility first; the artifact index itself has no permission model.
	if _, err := h.catalog.Get(c.Request.Context(), actor, docID); err != nil {
		respondErr(c, h.log, err)
		return
	}
	artifacts, err := h.artifacts.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
}

func (h *DocumentHandler) Rederive(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	artifact, err := h.ingestion.RequestRederivation(c.Request.Context(), actor, docID, types.ArtifactType(req.Type))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, artifact)
}

func parseUUIDList(raw string) ([]uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
