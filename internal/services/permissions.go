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

// PermissionService is the single authorization choke point. No other
// service reads the permission table directly; they all come through Check
// so the cache, the level lattice and the denial error stay in one place.
type PermissionService interface {
	// Check returns nil when userID holds at least required on tagID and a
	// *errdefs.PermissionDenied otherwise. Absence of a row is a denial,
	// never an error.
	Check(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID, required types.PermissionLevel) error
	// Level reports the effective level for (tag, user) and whether any
	// grant exists at all.
	Level(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) (types.PermissionLevel, bool, error)
	Grant(ctx context.Context, tx *gorm.DB, actorID, tagID, userID uuid.UUID, level types.PermissionLevel) (*types.Permission, error)
	Revoke(ctx context.Context, tx *gorm.DB, actorID, tagID, userID uuid.UUID) error
	ListByTag(ctx context.Context, tx *gorm.DB, actorID, tagID uuid.UUID) ([]*types.Permission, error)
}

type permissionService struct {
	tagRepo  repos.TagRepo
	permRepo repos.PermissionRepo
	cache    *PermissionCache
	log      *logger.Logger
}

func NewPermissionService(
	tagRepo repos.TagRepo,
	permRepo repos.PermissionRepo,
	cache *PermissionCache,
	baseLog *logger.Logger,
) PermissionService {
	return &permissionService{
		tagRepo:  tagRepo,
		permRepo: permRepo,
		cache:    cache,
		log:      baseLog.With("service", "PermissionService"),
	}
}

func (s *permissionService) Check(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID, required types.PermissionLevel) error {
	level, ok, err := s.Level(ctx, tx, tagID, userID)
	if err != nil {
		return err
	}
	if !ok || !level.Covers(required) {
		return &errdefs.PermissionDenied{TagID: tagID, UserID: userID, Required: string(required)}
	}
	return nil
}

func (s *permissionService) Level(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) (types.PermissionLevel, bool, error) {
	if level, ok := s.cache.Get(ctx, tagID.String(), userID.String()); ok {
		return level, true, nil
	}
	perm, err := s.permRepo.Get(ctx, tx, tagID, userID)
	if err != nil {
		return "", false, err
	}
	if perm == nil {
		return "", false, nil
	}
	s.cache.Set(ctx, tagID.String(), userID.String(), perm.Level)
	return perm.Level, true, nil
}

func (s *permissionService) Grant(ctx context.Context, tx *gorm.DB, actorID, tagID, userID uuid.UUID, level types.PermissionLevel) (*types.Permission, error) {
	if level.Rank() == 0 {
		return nil, &errdefs.InvariantViolation{Rule: "permission_level", Detail: "level must be read, write or admin"}
	}
	tag, err := s.tagRepo.GetByID(ctx, tx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.checkAdmin(ctx, tx, tag, actorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	perm := &types.Permission{
		UserID:    userID,
		TagID:     tagID,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.permRepo.Upsert(ctx, tx, perm); err != nil {
		return nil, err
	}
	s.cache.InvalidatePair(ctx, tagID.String(), userID.String())
	s.log.Info("permission granted",
		"tag_id", tagID.String(),
		"user_id", userID.String(),
		"actor_id", actorID.String(),
		"level", string(level))
	return perm, nil
}

func (s *permissionService) Revoke(ctx context.Context, tx *gorm.DB, actorID, tagID, userID uuid.UUID) error {
	tag, err := s.tagRepo.GetByID(ctx, tx, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.checkAdmin(ctx, tx, tag, actorID); err != nil {
		return err
	}

	existing, err := s.permRepo.Get(ctx, tx, tagID, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return &errdefs.NotFound{Resource: "permission", ID: tagID.String() + "/" + userID.String()}
	}
	if existing.Level == types.PermissionAdmin {
		admins, err := s.permRepo.CountByTagAndLevel(ctx, tx, tagID, types.PermissionAdmin)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return &errdefs.InvariantViolation{
				Rule:   "last_admin",
				Detail: "a tag must keep at least one admin; transfer admin before revoking",
			}
		}
	}
	if err := s.permRepo.Delete(ctx, tx, tagID, userID); err != nil {
		return err
	}
	s.cache.InvalidatePair(ctx, tagID.String(), userID.String())
	s.log.Info("permission revoked",
		"tag_id", tagID.String(),
		"user_id", userID.String(),
		"actor_id", actorID.String())
	return nil
}

func (s *permissionService) ListByTag(ctx context.Context, tx *gorm.DB, actorID, tagID uuid.UUID) ([]*types.Permission, error) {
	tag, err := s.tagRepo.GetByID(ctx, tx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, &errdefs.NotFound{Resource: "tag", ID: tagID.String()}
	}
	if err := s.checkAdmin(ctx, tx, tag, actorID); err != nil {
		return nil, err
	}
	return s.permRepo.ListByTagID(ctx, tx, tagID)
}

func (s *permissionService) checkAdmin(ctx context.Context, tx *gorm.DB, tag *types.Tag, actorID uuid.UUID) error {
	level, ok, err := s.Level(ctx, tx, tag.ID, actorID)
	if err != nil {
		return err
	}
	if !ok || !level.Covers(types.PermissionAdmin) {
		return &errdefs.PermissionDenied{
			TagID:    tag.ID,
			TagName:  tag.Name,
			UserID:   actorID,
			Required: string(types.PermissionAdmin),
		}
	}
	return nil
}
