package services

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

// Preview is a rendered markdown view of a document. Stale reports that
// the source content changed after this preview was derived; it is still
// served so the client can show something while re-derivation runs.
type Preview struct {
	DocumentID uuid.UUID `json:"document_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Markdown   string    `json:"markdown"`
	Stale      bool      `json:"stale"`
}

// ContentService serves document bytes: the raw original and the derived
// markdown preview. All access goes through catalog visibility, so a blob
// key alone is never enough to read content.
type ContentService interface {
	GetRaw(ctx context.Context, actorID, documentID uuid.UUID) (io.ReadCloser, *types.Document, error)
	GetMarkdownPreview(ctx context.Context, actorID, documentID uuid.UUID) (*Preview, error)
}

type contentService struct {
	catalog   CatalogService
	artifacts ArtifactService
	blobs     blobstore.Store
	log       *logger.Logger
}

func NewContentService(
	catalog CatalogService,
	artifacts ArtifactService,
	blobs blobstore.Store,
	baseLog *logger.Logger,
) ContentService {
	return &contentService{
		catalog:   catalog,
		artifacts: artifacts,
		blobs:     blobs,
		log:       baseLog.With("service", "ContentService"),
	}
}

func (s *contentService) GetRaw(ctx context.Context, actorID, documentID uuid.UUID) (io.ReadCloser, *types.Document, error) {
	doc, err := s.catalog.Get(ctx, actorID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, ContentKey(doc.ID, doc.ContentFingerprint))
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

func (s *contentService) GetMarkdownPreview(ctx context.Context, actorID, documentID uuid.UUID) (*Preview, error) {
	doc, err := s.catalog.Get(ctx, actorID, documentID)
	if err != nil {
		return nil, err
	}
	artifact, err := s.artifacts.LatestReady(ctx, doc.ID, types.ArtifactTypeMarkdown)
	if err != nil {
		return nil, err
	}
	if artifact.StorageRef == "" {
		return nil, &errdefs.NotFound{Resource: "artifact", ID: artifact.ID.String()}
	}
	rc, err := s.blobs.Get(ctx, artifact.StorageRef)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	md, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return &Preview{
		DocumentID: doc.ID,
		ArtifactID: artifact.ID,
		Markdown:   string(md),
		Stale:      artifact.Status == types.ArtifactStatusStale,
	}, nil
}
