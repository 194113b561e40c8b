package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

type catalogFixture struct {
	tags      *fakeTagRepo
	perms     *fakePermissionRepo
	docs      *fakeDocumentRepo
	artifacts *fakeArtifactRepo
	permSvc   PermissionService
	svc       CatalogService
}

func newCatalogFixture(maxTagTokens int) *catalogFixture {
	tags := newFakeTagRepo()
	perms := newFakePermissionRepo()
	docs := newFakeDocumentRepo()
	artifacts := newFakeArtifactRepo()
	permSvc := NewPermissionService(tags, perms, nil, logger.NewNop())
	return &catalogFixture{
		tags:      tags,
		perms:     perms,
		docs:      docs,
		artifacts: artifacts,
		permSvc:   permSvc,
		svc:       NewCatalogService(nil, docs, tags, artifacts, permSvc, maxTagTokens, logger.NewNop()),
	}
}

func (f *catalogFixture) seedTag(t *testing.T, name string, userID uuid.UUID, level types.PermissionLevel) uuid.UUID {
	t.Helper()
	tagID := uuid.New()
	if err := f.tags.Create(context.Background(), nil, &types.Tag{ID: tagID, Name: name, Kind: types.TagKindShared, OwnerID: userID}); err != nil {
		t.Fatalf("seed tag: %v", err)
	}
	if level != "" {
		if err := f.perms.Upsert(context.Background(), nil, &types.Permission{UserID: userID, TagID: tagID, Level: level}); err != nil {
			t.Fatalf("seed grant: %v", err)
		}
	}
	return tagID
}

func TestRegisterWithoutTagsIsOwnerOnly(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()

	doc, err := f.svc.Register(context.Background(), RegisterInput{Filename: "a.txt", OwnerID: owner})
	if err != nil {
		t.Fatalf("register orphan: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), owner, doc.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	// With no tags there is no grant path in; only the owner sees it.
	if _, err := f.svc.Get(context.Background(), uuid.New(), doc.ID); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound for stranger, got=%v", err)
	}
}

func TestRegisterAtomicOnUnwritableTag(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	writable := f.seedTag(t, "mine", owner, types.PermissionWrite)
	readonly := f.seedTag(t, "readonly", owner, types.PermissionRead)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt",
		OwnerID:  owner,
		TagIDs:   []uuid.UUID{writable, readonly},
	})
	var denied *errdefs.PermissionDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDenied, got=%T (%v)", err, err)
	}
	if denied.TagName != "readonly" {
		t.Fatalf("denial should name the offending tag, got=%q", denied.TagName)
	}
	// All-or-nothing: no document row was created.
	docs, err := f.docs.Find(context.Background(), nil, repos.DocumentFilter{OwnerID: owner, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("partial register left %d document(s)", len(docs))
	}
}

func TestRegisterEnforcesTagBudget(t *testing.T) {
	f := newCatalogFixture(1000)
	owner := uuid.New()
	tagID := f.seedTag(t, "mine", owner, types.PermissionWrite)

	if _, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, TokenCount: 900,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "b.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, TokenCount: 200,
	})
	var exceeded *errdefs.TokenBudgetExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected TokenBudgetExceeded, got=%T (%v)", err, err)
	}
	if exceeded.Limit != 1000 || exceeded.Actual != 1100 {
		t.Fatalf("budget numbers: limit=%d actual=%d", exceeded.Limit, exceeded.Actual)
	}
}

func TestGetVisibility(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	tagID := f.seedTag(t, "mine", owner, types.PermissionWrite)
	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Owner always sees it.
	if _, err := f.svc.Get(context.Background(), owner, doc.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	// A stranger gets NotFound, not PermissionDenied.
	if _, err := f.svc.Get(context.Background(), uuid.New(), doc.ID); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got=%v", err)
	}
	// A reader on one of its tags sees it.
	reader := uuid.New()
	if err := f.perms.Upsert(context.Background(), nil, &types.Permission{UserID: reader, TagID: tagID, Level: types.PermissionRead}); err != nil {
		t.Fatalf("seed read grant: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), reader, doc.ID); err != nil {
		t.Fatalf("reader get: %v", err)
	}
}

func TestFindDropsUnreadableTags(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	mine := f.seedTag(t, "mine", owner, types.PermissionWrite)
	other := f.seedTag(t, "other", uuid.New(), types.PermissionAdmin)

	if _, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{mine},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	docs, err := f.svc.Find(context.Background(), owner, repos.DocumentFilter{TagIDs: []uuid.UUID{mine, other}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got=%d", len(docs))
	}

	// All tags unreadable: empty result, not an error.
	docs, err = f.svc.Find(context.Background(), uuid.New(), repos.DocumentFilter{TagIDs: []uuid.UUID{mine, other}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected 0 documents, got=%d", len(docs))
	}
}

func TestAttachTagDeniedWithoutWrite(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	mine := f.seedTag(t, "mine", owner, types.PermissionWrite)
	restricted := f.seedTag(t, "restricted", uuid.New(), types.PermissionAdmin)
	// The owner can read the restricted tag but not write it.
	if err := f.perms.Upsert(context.Background(), nil, &types.Permission{UserID: owner, TagID: restricted, Level: types.PermissionRead}); err != nil {
		t.Fatalf("seed read grant: %v", err)
	}

	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{mine},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	err = f.svc.AttachTag(context.Background(), owner, doc.ID, restricted)
	var denied *errdefs.PermissionDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDenied, got=%T (%v)", err, err)
	}
	if denied.TagName != "restricted" {
		t.Fatalf("denial should name the tag, got=%q", denied.TagName)
	}
	ids, _ := f.docs.ListTagIDs(context.Background(), nil, doc.ID)
	if len(ids) != 1 {
		t.Fatalf("link set changed on denied attach: %v", ids)
	}
}

func TestDetachTagByOwner(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	a := f.seedTag(t, "a", owner, types.PermissionWrite)
	b := f.seedTag(t, "b", owner, types.PermissionWrite)
	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{a, b},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := f.svc.DetachTag(context.Background(), owner, doc.ID, b); err != nil {
		t.Fatalf("detach: %v", err)
	}
	ids, _ := f.docs.ListTagIDs(context.Background(), nil, doc.ID)
	if len(ids) != 1 || ids[0] != a {
		t.Fatalf("unexpected link set after detach: %v", ids)
	}
}

func TestSoftDeleteMarksArtifacts(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	tagID := f.seedTag(t, "mine", owner, types.PermissionWrite)
	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	artifactID := uuid.New()
	if err := f.artifacts.Create(context.Background(), nil, &types.Artifact{
		ID: artifactID, DocumentID: doc.ID, Type: types.ArtifactTypeMarkdown, Status: types.ArtifactStatusReady,
	}); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}

	if err := f.svc.SoftDelete(context.Background(), owner, doc.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, _ := f.docs.GetByID(context.Background(), nil, doc.ID)
	if got.Status != types.DocumentStatusDeleted {
		t.Fatalf("status: want=%q got=%q", types.DocumentStatusDeleted, got.Status)
	}
	if got.DeletedAtUnix == 0 {
		t.Fatal("deleted_at_unix not stamped")
	}
	a, _ := f.artifacts.GetByID(context.Background(), nil, artifactID)
	if a.Status != types.ArtifactStatusDeleted {
		t.Fatalf("artifact status: want=%q got=%q", types.ArtifactStatusDeleted, a.Status)
	}

	// A deleted document reads as missing.
	if _, err := f.svc.Get(context.Background(), owner, doc.ID); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound after delete, got=%v", err)
	}
}

func TestSoftDeleteRequiresOwnerOrTagAdmin(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	tagID := f.seedTag(t, "mine", owner, types.PermissionWrite)
	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	reader := uuid.New()
	if err := f.perms.Upsert(context.Background(), nil, &types.Permission{UserID: reader, TagID: tagID, Level: types.PermissionRead}); err != nil {
		t.Fatalf("seed read grant: %v", err)
	}
	if err := f.svc.SoftDelete(context.Background(), reader, doc.ID); !errdefs.IsPermissionDenied(err) {
		t.Fatalf("expected PermissionDenied, got=%v", err)
	}

	tagAdmin := uuid.New()
	if err := f.perms.Upsert(context.Background(), nil, &types.Permission{UserID: tagAdmin, TagID: tagID, Level: types.PermissionAdmin}); err != nil {
		t.Fatalf("seed admin grant: %v", err)
	}
	if err := f.svc.SoftDelete(context.Background(), tagAdmin, doc.ID); err != nil {
		t.Fatalf("tag admin delete: %v", err)
	}
}

func TestSetRetrievable(t *testing.T) {
	f := newCatalogFixture(0)
	owner := uuid.New()
	tagID := f.seedTag(t, "mine", owner, types.PermissionWrite)
	doc, err := f.svc.Register(context.Background(), RegisterInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Retrievable: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.svc.SetRetrievable(context.Background(), owner, doc.ID, false); err != nil {
		t.Fatalf("set retrievable: %v", err)
	}
	got, _ := f.docs.GetByID(context.Background(), nil, doc.ID)
	if got.Retrievable {
		t.Fatal("retrievable flag not cleared")
	}
}
