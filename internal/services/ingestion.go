package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/observability"
	"github.com/docscope/docscope-backend/internal/parse"
	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/tokenizer"
	"github.com/docscope/docscope-backend/internal/types"
)

// UploadInput is one file plus its catalog intent. Content is fully
// buffered; uploads are bounded by the HTTP layer's body limit.
type UploadInput struct {
	Filename    string
	MimeType    string
	OwnerID     uuid.UUID
	TagIDs      []uuid.UUID
	Content     []byte
	Retrievable bool
}

// IngestionService orchestrates upload end to end: fingerprint, catalog
// registration, the blob write, and the derivation requests. Registration
// happens before the blob write so a crash can never leave an orphaned
// blob without a catalog row pointing at it; the reverse (a failed row)
// is visible and retryable.
type IngestionService interface {
	Upload(ctx context.Context, in UploadInput) (*types.Document, error)
	// Reupload replaces a document's content in place: same identity, new
	// fingerprint, every existing artifact invalidated and re-derived.
	Reupload(ctx context.Context, actorID, documentID uuid.UUID, content []byte) (*types.Document, error)
	// RequestRederivation re-runs one artifact type against the current
	// content, e.g. after a processor upgrade.
	RequestRederivation(ctx context.Context, actorID, documentID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error)
}

type ingestionService struct {
	catalog    CatalogService
	artifacts  ArtifactService
	docRepo    repos.DocumentRepo
	jobRepo    repos.JobRunRepo
	blobs      blobstore.Store
	registry   *parse.Registry
	tokens     tokenizer.Counter
	log        *logger.Logger
}

func NewIngestionService(
	catalog CatalogService,
	artifacts ArtifactService,
	docRepo repos.DocumentRepo,
	jobRepo repos.JobRunRepo,
	blobs blobstore.Store,
	registry *parse.Registry,
	tokens tokenizer.Counter,
	baseLog *logger.Logger,
) IngestionService {
	return &ingestionService{
		catalog:   catalog,
		artifacts: artifacts,
		docRepo:   docRepo,
		jobRepo:   jobRepo,
		blobs:     blobs,
		registry:  registry,
		tokens:    tokens,
		log:       baseLog.With("service", "IngestionService"),
	}
}

// ContentKey is the blob key for a document's raw bytes. Keys carry the
// fingerprint so a re-upload writes a new blob instead of clobbering the
// one a running derivation may still be reading.
func ContentKey(documentID uuid.UUID, fingerprint string) string {
	return "content/" + documentID.String() + "/" + fingerprint
}

// ArtifactKey is the blob key for one derived output.
func ArtifactKey(artifact *types.Artifact) string {
	return "artifacts/" + artifact.DocumentID.String() + "/" + string(artifact.Type) + "/" + artifact.ID.String()
}

func contentFingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *ingestionService) Upload(ctx context.Context, in UploadInput) (*types.Document, error) {
	if len(in.Content) == 0 {
		return nil, &errdefs.InvariantViolation{Rule: "document_content", Detail: "empty upload"}
	}

	fingerprint := contentFingerprint(in.Content)
	tokenCount := s.countTokens(in.Filename, in.MimeType, in.Content)

	doc, err := s.catalog.Register(ctx, RegisterInput{
		Filename:           in.Filename,
		MimeType:           in.MimeType,
		SizeBytes:          int64(len(in.Content)),
		OwnerID:            in.OwnerID,
		TagIDs:             in.TagIDs,
		ContentFingerprint: fingerprint,
		TokenCount:         tokenCount,
		Retrievable:        in.Retrievable,
	})
	if err != nil {
		return nil, err
	}

	if err := s.blobs.Put(ctx, ContentKey(doc.ID, fingerprint), bytes.NewReader(in.Content)); err != nil {
		s.markFailed(ctx, doc.ID, err)
		return nil, err
	}
	if err := s.docRepo.UpdateFields(ctx, nil, doc.ID, map[string]interface{}{
		"status":     types.DocumentStatusReady,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	doc.Status = types.DocumentStatusReady

	if err := s.enqueueDerivations(ctx, doc); err != nil {
		// The document is already usable; derivation failures surface on
		// the artifact index, not on the upload.
		s.log.Error("derivation enqueue failed", "document_id", doc.ID.String(), "error", err)
	}

	observability.Current().ObserveUpload(ctx)
	s.log.Info("document uploaded",
		"document_id", doc.ID.String(),
		"filename", doc.Filename,
		"size_bytes", doc.SizeBytes,
		"token_count", doc.TokenCount)
	return doc, nil
}

func (s *ingestionService) Reupload(ctx context.Context, actorID, documentID uuid.UUID, content []byte) (*types.Document, error) {
	if len(content) == 0 {
		return nil, &errdefs.InvariantViolation{Rule: "document_content", Detail: "empty upload"}
	}
	doc, err := s.catalog.Get(ctx, actorID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != actorID {
		return nil, &errdefs.PermissionDenied{UserID: actorID, Required: "owner"}
	}

	fingerprint := contentFingerprint(content)
	if fingerprint == doc.ContentFingerprint {
		return doc, nil
	}

	if err := s.blobs.Put(ctx, ContentKey(doc.ID, fingerprint), bytes.NewReader(content)); err != nil {
		return nil, err
	}
	tokenCount := s.countTokens(doc.Filename, doc.MimeType, content)
	if err := s.docRepo.UpdateFields(ctx, nil, doc.ID, map[string]interface{}{
		"content_fingerprint": fingerprint,
		"size_bytes":          int64(len(content)),
		"token_count":         tokenCount,
		"status":              types.DocumentStatusReady,
		"updated_at":          time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	doc.ContentFingerprint = fingerprint
	doc.SizeBytes = int64(len(content))
	doc.TokenCount = tokenCount
	doc.Status = types.DocumentStatusReady

	// New content makes every prior derivation a lie.
	if err := s.artifacts.Invalidate(ctx, doc.ID); err != nil {
		return nil, err
	}
	if err := s.enqueueDerivations(ctx, doc); err != nil {
		s.log.Error("derivation enqueue failed", "document_id", doc.ID.String(), "error", err)
	}

	s.log.Info("document re-uploaded", "document_id", doc.ID.String(), "fingerprint", fingerprint)
	return doc, nil
}

func (s *ingestionService) RequestRederivation(ctx context.Context, actorID, documentID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error) {
	doc, err := s.catalog.Get(ctx, actorID, documentID)
	if err != nil {
		return nil, err
	}
	return s.requestAndEnqueue(ctx, doc, artifactType)
}

// enqueueDerivations requests a pending artifact plus a job row for each
// type the document's format supports. Requests for the different types
// are independent, so they fan out concurrently.
func (s *ingestionService) enqueueDerivations(ctx context.Context, doc *types.Document) error {
	artifactTypes := s.derivableTypes(doc.Filename)
	if len(artifactTypes) == 0 {
		s.log.Warn("no processor for file; skipping derivations", "document_id", doc.ID.String(), "filename", doc.Filename)
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, at := range artifactTypes {
		artifactType := at
		g.Go(func() error {
			_, err := s.requestAndEnqueue(gctx, doc, artifactType)
			if errdefs.IsConflict(err) {
				// A derivation of this type is already in flight; it will
				// pick up the current content via the blob key.
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *ingestionService) requestAndEnqueue(ctx context.Context, doc *types.Document, artifactType types.ArtifactType) (*types.Artifact, error) {
	proc, ok := s.registry.Lookup(doc.Filename)
	if !ok {
		return nil, &errdefs.InvariantViolation{
			Rule:   "derivable_format",
			Detail: "no processor registered for " + doc.Filename,
		}
	}
	fingerprint := DerivationFingerprint(doc.ContentFingerprint, proc.Name(), proc.Version())
	artifact, err := s.artifacts.RequestDerivation(ctx, doc.ID, artifactType, fingerprint)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{
		"artifact_id":   artifact.ID.String(),
		"document_id":   doc.ID.String(),
		"artifact_type": string(artifactType),
		"content_key":   ContentKey(doc.ID, doc.ContentFingerprint),
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    types.JobTypeArtifactDerive,
		EntityType: "artifact",
		EntityID:   artifact.ID,
		Payload:    datatypes.JSON(payload),
		Status:     types.JobStatusQueued,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobRepo.Create(ctx, nil, job); err != nil {
		return nil, err
	}
	return artifact, nil
}

// derivableTypes maps a filename to the artifact types its processor can
// feed: tabular formats produce tabular artifacts, everything else yields
// markdown plus vectors over that markdown.
func (s *ingestionService) derivableTypes(filename string) []types.ArtifactType {
	if _, ok := s.registry.Lookup(filename); !ok {
		return nil
	}
	if isTabular(filename) {
		return []types.ArtifactType{types.ArtifactTypeTabular}
	}
	return []types.ArtifactType{types.ArtifactTypeMarkdown, types.ArtifactTypeVector}
}

func isTabular(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".csv")
}

func (s *ingestionService) countTokens(filename, mimeType string, content []byte) int {
	if proc, ok := s.registry.Lookup(filename); ok {
		out, err := proc.Process(content, mimeType)
		if err == nil {
			if out.Markdown != "" {
				return s.tokens.Count(out.Markdown)
			}
			var b strings.Builder
			for _, row := range out.Rows {
				b.WriteString(strings.Join(row, " "))
				b.WriteByte('\n')
			}
			return s.tokens.Count(b.String())
		}
		s.log.Warn("token precount parse failed; falling back to size estimate", "filename", filename, "error", err)
	}
	// Binary formats are parsed asynchronously; a size-based estimate
	// keeps budget enforcement at upload time.
	return len(content) / 4
}

func (s *ingestionService) markFailed(ctx context.Context, documentID uuid.UUID, cause error) {
	if err := s.docRepo.UpdateFields(ctx, nil, documentID, map[string]interface{}{
		"status":     types.DocumentStatusFailed,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		s.log.Error("failed to mark document failed", "document_id", documentID.String(), "error", err)
		return
	}
	s.log.Warn("document upload failed", "document_id", documentID.String(), "error", cause)
}
