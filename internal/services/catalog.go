package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// RegisterInput carries everything the catalog needs to admit a document.
// ID may be preset by the caller (re-upload keeps the original identity);
// a zero ID gets generated.
type RegisterInput struct {
	ID                 uuid.UUID
	Filename           string
	MimeType           string
	SizeBytes          int64
	OwnerID            uuid.UUID
	TagIDs             []uuid.UUID
	ContentFingerprint string
	TokenCount         int
	Retrievable        bool
}

// CatalogService owns document records and their tag links. Registration
// is atomic: if any requested tag is unwritable the document is not
// created at all.
type CatalogService interface {
	Register(ctx context.Context, in RegisterInput) (*types.Document, error)
	Get(ctx context.Context, actorID, documentID uuid.UUID) (*types.Document, error)
	// Find lists documents by tag and owner filters. Requested tags the
	// actor cannot read are dropped rather than erroring, matching scope
	// resolution; with no tag filter the listing is owner-only.
	Find(ctx context.Context, actorID uuid.UUID, filter repos.DocumentFilter) ([]*types.Document, error)
	AttachTag(ctx context.Context, actorID, documentID, tagID uuid.UUID) error
	DetachTag(ctx context.Context, actorID, documentID, tagID uuid.UUID) error
	SetRetrievable(ctx context.Context, actorID, documentID uuid.UUID, retrievable bool) error
	SoftDelete(ctx context.Context, actorID, documentID uuid.UUID) error
}

type catalogService struct {
	db           *gorm.DB
	docRepo      repos.DocumentRepo
	tagRepo      repos.TagRepo
	artifactRepo repos.ArtifactRepo
	perms        PermissionService
	maxTagTokens int
	log          *logger.Logger
}

func NewCatalogService(
	db *gorm.DB,
	docRepo repos.DocumentRepo,
	tagRepo repos.TagRepo,
	artifactRepo repos.ArtifactRepo,
	perms PermissionService,
	maxTagTokens int,
	baseLog *logger.Logger,
) CatalogService {
	return &catalogService{
		db:           db,
		docRepo:      docRepo,
		tagRepo:      tagRepo,
		artifactRepo: artifactRepo,
		perms:        perms,
		maxTagTokens: maxTagTokens,
		log:          baseLog.With("service", "CatalogService"),
	}
}

func (s *catalogService) Register(ctx context.Context, in RegisterInput) (*types.Document, error) {
	if in.Filename == "" {
		return nil, &errdefs.InvariantViolation{Rule: "document_filename", Detail: "filename is required"}
	}
	// An empty tag set is legal: the document is an orphan visible only to
	// its owner until a tag is attached.
	// All-or-nothing: every tag must be writable before any row is
	// created. The write checks run outside the transaction; the grant
	// rows they read are stable for the duration of an upload.
	for _, tagID := range in.TagIDs {
		if err := s.requireWritableTag(ctx, tagID, in.OwnerID); err != nil {
			return nil, err
		}
		if err := s.checkTagBudget(ctx, tagID, in.TokenCount); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	doc := &types.Document{
		ID:                 in.ID,
		Filename:           in.Filename,
		MimeType:           in.MimeType,
		SizeBytes:          in.SizeBytes,
		OwnerID:            in.OwnerID,
		ContentFingerprint: in.ContentFingerprint,
		TokenCount:         in.TokenCount,
		Retrievable:        in.Retrievable,
		Status:             types.DocumentStatusUploading,
		CreatedAt:          now,
		UpdatedAt:          now,
		TagIDs:             in.TagIDs,
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.docRepo.Create(ctx, tx, doc); err != nil {
			return err
		}
		for _, tagID := range in.TagIDs {
			if err := s.docRepo.AttachTag(ctx, tx, doc.ID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("document registered",
		"document_id", doc.ID.String(),
		"filename", doc.Filename,
		"owner_id", doc.OwnerID.String(),
		"tags", len(in.TagIDs))
	return doc, nil
}

func (s *catalogService) Get(ctx context.Context, actorID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.visibleDocument(ctx, actorID, documentID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *catalogService) Find(ctx context.Context, actorID uuid.UUID, filter repos.DocumentFilter) ([]*types.Document, error) {
	if len(filter.TagIDs) > 0 {
		readable := make([]uuid.UUID, 0, len(filter.TagIDs))
		for _, tagID := range filter.TagIDs {
			if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionRead); err != nil {
				if errdefs.IsPermissionDenied(err) {
					continue
				}
				return nil, err
			}
			readable = append(readable, tagID)
		}
		if len(readable) == 0 {
			return []*types.Document{}, nil
		}
		filter.TagIDs = readable
	} else {
		filter.OwnerID = actorID
	}
	return s.docRepo.Find(ctx, nil, filter)
}

func (s *catalogService) AttachTag(ctx context.Context, actorID, documentID, tagID uuid.UUID) error {
	doc, err := s.visibleDocument(ctx, actorID, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actorID {
		// Non-owners need admin on the tag to pull a document into it.
		if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionAdmin); err != nil {
			return err
		}
	}
	if err := s.requireWritableTag(ctx, tagID, actorID); err != nil {
		return err
	}
	if err := s.checkTagBudget(ctx, tagID, doc.TokenCount); err != nil {
		return err
	}
	if err := s.docRepo.AttachTag(ctx, nil, documentID, tagID); err != nil {
		return err
	}
	s.log.Info("tag attached", "document_id", documentID.String(), "tag_id", tagID.String(), "actor_id", actorID.String())
	return nil
}

func (s *catalogService) DetachTag(ctx context.Context, actorID, documentID, tagID uuid.UUID) error {
	doc, err := s.visibleDocument(ctx, actorID, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actorID {
		if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionAdmin); err != nil {
			return err
		}
	}
	if err := s.docRepo.DetachTag(ctx, nil, documentID, tagID); err != nil {
		return err
	}
	s.log.Info("tag detached", "document_id", documentID.String(), "tag_id", tagID.String(), "actor_id", actorID.String())
	return nil
}

func (s *catalogService) SetRetrievable(ctx context.Context, actorID, documentID uuid.UUID, retrievable bool) error {
	doc, err := s.visibleDocument(ctx, actorID, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actorID {
		if err := s.requireTagAdminOnAny(ctx, actorID, doc); err != nil {
			return err
		}
	}
	return s.docRepo.UpdateFields(ctx, nil, documentID, map[string]interface{}{
		"retrievable": retrievable,
		"updated_at":  time.Now().UTC(),
	})
}

func (s *catalogService) SoftDelete(ctx context.Context, actorID, documentID uuid.UUID) error {
	doc, err := s.visibleDocument(ctx, actorID, documentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != actorID {
		if err := s.requireTagAdminOnAny(ctx, actorID, doc); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.docRepo.UpdateFields(ctx, tx, documentID, map[string]interface{}{
			"status":          types.DocumentStatusDeleted,
			"deleted_at_unix": now.Unix(),
			"updated_at":      now,
		}); err != nil {
			return err
		}
		// Artifacts are marked, never cascaded away; the GC sweep reclaims
		// them after the retention window.
		return s.artifactRepo.MarkDeletedByDocument(ctx, tx, documentID)
	})
	if err != nil {
		return err
	}
	s.log.Info("document soft-deleted", "document_id", documentID.String(), "actor_id", actorID.String())
	return nil
}

// visibleDocument fetches a live document the actor may see: the owner, or
// anyone holding read on at least one of its tags. Invisible and missing
// documents are indistinguishable to the caller.
func (s *catalogService) visibleDocument(ctx context.Context, actorID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Status == types.DocumentStatusDeleted {
		return nil, &errdefs.NotFound{Resource: "document", ID: documentID.String()}
	}
	if doc.OwnerID == actorID {
		return doc, nil
	}
	for _, tagID := range doc.TagIDs {
		if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionRead); err == nil {
			return doc, nil
		} else if !errdefs.IsPermissionDenied(err) {
			return nil, err
		}
	}
	return nil, &errdefs.NotFound{Resource: "document", ID: documentID.String()}
}

func (s *catalogService) requireWritableTag(ctx context.Context, tagID, userID uuid.UUID) error {
	tag, err := s.tagRepo.GetByID(ctx, nil, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.perms.Check(ctx, nil, tagID, userID, types.PermissionWrite); err != nil {
		if errdefs.IsPermissionDenied(err) {
			// Re-issue with the tag name attached so the client can name
			// the offender without a second lookup.
			return &errdefs.PermissionDenied{TagID: tagID, TagName: tag.Name, UserID: userID, Required: string(types.PermissionWrite)}
		}
		return err
	}
	return nil
}

func (s *catalogService) requireTagAdminOnAny(ctx context.Context, actorID uuid.UUID, doc *types.Document) error {
	for _, tagID := range doc.TagIDs {
		if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionAdmin); err == nil {
			return nil
		} else if !errdefs.IsPermissionDenied(err) {
			return err
		}
	}
	return &errdefs.PermissionDenied{UserID: actorID, Required: string(types.PermissionAdmin)}
}

// checkTagBudget rejects an upload or attach that would push the live token
// total of one tag past the configured ceiling. A zero ceiling disables the
// check. The scoper re-validates the aggregate at resolve time, so a race
// here degrades to a late rejection rather than an oversized context.
func (s *catalogService) checkTagBudget(ctx context.Context, tagID uuid.UUID, addTokens int) error {
	if s.maxTagTokens <= 0 {
		return nil
	}
	docs, err := s.docRepo.Find(ctx, nil, repos.DocumentFilter{TagIDs: []uuid.UUID{tagID}})
	if err != nil {
		return err
	}
	total := addTokens
	for _, d := range docs {
		total += d.TokenCount
	}
	if total > s.maxTagTokens {
		return &errdefs.TokenBudgetExceeded{Limit: s.maxTagTokens, Actual: total}
	}
	return nil
}
