package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// TagService owns the tag registry: creation with case-insensitive name
// uniqueness, listing scoped to the caller's grants, and the cascading
// delete that removes document links and permission rows with the tag.
type TagService interface {
	Create(ctx context.Context, actorID uuid.UUID, name string, kind types.TagKind) (*types.Tag, error)
	Get(ctx context.Context, actorID, tagID uuid.UUID) (*types.Tag, error)
	// List returns every tag the actor holds at least read on, ordered by
	// name for stable pagination.
	List(ctx context.Context, actorID uuid.UUID) ([]*types.Tag, error)
	Delete(ctx context.Context, actorID, tagID uuid.UUID) error
}

type tagService struct {
	db       *gorm.DB
	tagRepo  repos.TagRepo
	permRepo repos.PermissionRepo
	docRepo  repos.DocumentRepo
	perms    PermissionService
	cache    *PermissionCache
	log      *logger.Logger
}

func NewTagService(
	db *gorm.DB,
	tagRepo repos.TagRepo,
	permRepo repos.PermissionRepo,
	docRepo repos.DocumentRepo,
	perms PermissionService,
	cache *PermissionCache,
	baseLog *logger.Logger,
) TagService {
	return &tagService{
		db:       db,
		tagRepo:  tagRepo,
		permRepo: permRepo,
		docRepo:  docRepo,
		perms:    perms,
		cache:    cache,
		log:      baseLog.With("service", "TagService"),
	}
}

func (s *tagService) Create(ctx context.Context, actorID uuid.UUID, name string, kind types.TagKind) (*types.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &errdefs.InvariantViolation{Rule: "tag_name", Detail: "tag name is required"}
	}
	if kind != types.TagKindShared && kind != types.TagKindPrivate {
		kind = types.TagKindShared
	}

	existing, err := s.tagRepo.GetByNameCI(ctx, nil, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &errdefs.Conflict{Resource: "tag", Detail: "name already in use: " + existing.Name}
	}

	now := time.Now().UTC()
	tag := &types.Tag{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		OwnerID:   actorID,
		CreatedAt: now,
	}
	// The creator's admin grant rides in the same transaction so no tag can
	// exist without an admin, even across a crash.
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.tagRepo.Create(ctx, tx, tag); err != nil {
			return err
		}
		return s.permRepo.Upsert(ctx, tx, &types.Permission{
			UserID:    actorID,
			TagID:     tag.ID,
			Level:     types.PermissionAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("tag created", "tag_id", tag.ID.String(), "name", tag.Name, "kind", string(tag.Kind), "owner_id", actorID.String())
	return tag, nil
}

func (s *tagService) Get(ctx context.Context, actorID, tagID uuid.UUID) (*types.Tag, error) {
	tag, err := s.tagRepo.GetByID(ctx, nil, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionRead); err != nil {
		if errdefs.IsPermissionDenied(err) {
			// Reads on unknown grants 404 rather than 403 so probing for
			// tag IDs leaks nothing.
			return nil, &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
		}
		return nil, err
	}
	return tag, nil
}

func (s *tagService) List(ctx context.Context, actorID uuid.UUID) ([]*types.Tag, error) {
	perms, err := s.permRepo.ListByUserID(ctx, nil, actorID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		if p.Level.Covers(types.PermissionRead) {
			ids = append(ids, p.TagID)
		}
	}
	tags, err := s.tagRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(tags, func(i, j int) bool {
		return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name)
	})
	return tags, nil
}

func (s *tagService) Delete(ctx context.Context, actorID, tagID uuid.UUID) error {
	tag, err := s.tagRepo.GetByID(ctx, nil, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.perms.Check(ctx, nil, tagID, actorID, types.PermissionAdmin); err != nil {
		var denied *errdefs.PermissionDenied
		if errors.As(err, &denied) {
			denied.TagName = tag.Name
		}
		return err
	}

	// Links and grants go with the tag; documents survive as orphans with
	// owner-only visibility.
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.docRepo.DeleteTagLinksByTagID(ctx, tx, tagID); err != nil {
			return err
		}
		if err := s.permRepo.DeleteByTagID(ctx, tx, tagID); err != nil {
			return err
		}
		return s.tagRepo.Delete(ctx, tx, tagID)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateTag(ctx, tagID.String())
	s.log.Info("tag deleted", "tag_id", tagID.String(), "name", tag.Name, "actor_id", actorID.String())
	return nil
}
