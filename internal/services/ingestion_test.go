package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/parse"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/tokenizer"
	"github.com/docscope/docscope-backend/internal/types"
)

type ingestionFixture struct {
	catalog   *catalogFixture
	jobs      *fakeJobRunRepo
	blobs     *fakeBlobStore
	artifacts ArtifactService
	svc       IngestionService
}

func newIngestionFixture() *ingestionFixture {
	cf := newCatalogFixture(0)
	jobs := newFakeJobRunRepo()
	blobs := newFakeBlobStore()
	artifacts := NewArtifactService(cf.artifacts, cf.docs, logger.NewNop())
	svc := NewIngestionService(
		cf.svc,
		artifacts,
		cf.docs,
		jobs,
		blobs,
		parse.NewDefaultRegistry(),
		tokenizer.NewHeuristic(),
		logger.NewNop(),
	)
	return &ingestionFixture{catalog: cf, jobs: jobs, blobs: blobs, artifacts: artifacts, svc: svc}
}

func (f *ingestionFixture) seedWritableTag(t *testing.T, owner uuid.UUID) uuid.UUID {
	t.Helper()
	return f.catalog.seedTag(t, "docs", owner, types.PermissionWrite)
}

func TestUploadTextDocument(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename:    "notes.txt",
		MimeType:    "text/plain",
		OwnerID:     owner,
		TagIDs:      []uuid.UUID{tagID},
		Content:     []byte("some plain text notes"),
		Retrievable: true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.Status != types.DocumentStatusReady {
		t.Fatalf("status: want=%q got=%q", types.DocumentStatusReady, doc.Status)
	}
	if doc.ContentFingerprint == "" {
		t.Fatal("fingerprint not set")
	}
	if doc.TokenCount == 0 {
		t.Fatal("token count not set")
	}
	if !f.blobs.has(ContentKey(doc.ID, doc.ContentFingerprint)) {
		t.Fatal("content blob missing")
	}

	// Text yields markdown and vector derivations, one job row each.
	pendings, err := f.catalog.artifacts.ListByDocument(context.Background(), nil, doc.ID)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(pendings) != 2 {
		t.Fatalf("expected 2 pending artifacts, got=%d", len(pendings))
	}
	seen := map[types.ArtifactType]bool{}
	for _, a := range pendings {
		if a.Status != types.ArtifactStatusPending {
			t.Fatalf("artifact %s status: want=%q got=%q", a.Type, types.ArtifactStatusPending, a.Status)
		}
		seen[a.Type] = true
	}
	if !seen[types.ArtifactTypeMarkdown] || !seen[types.ArtifactTypeVector] {
		t.Fatalf("unexpected artifact types: %v", seen)
	}
	if f.jobs.count() != 2 {
		t.Fatalf("expected 2 job rows, got=%d", f.jobs.count())
	}
}

func TestUploadCSVDerivesTabular(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "table.csv",
		MimeType: "text/csv",
		OwnerID:  owner,
		TagIDs:   []uuid.UUID{tagID},
		Content:  []byte("a,b\n1,2\n"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	artifacts, err := f.catalog.artifacts.ListByDocument(context.Background(), nil, doc.ID)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Type != types.ArtifactTypeTabular {
		t.Fatalf("expected a single tabular artifact, got=%+v", artifacts)
	}
}

func TestUploadEmptyContent(t *testing.T) {
	f := newIngestionFixture()
	_, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: uuid.New(), TagIDs: []uuid.UUID{uuid.New()},
	})
	if !errdefs.IsInvariantViolation(err) {
		t.Fatalf("expected InvariantViolation, got=%v", err)
	}
}

func TestUploadBlobFailureMarksDocumentFailed(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)
	f.blobs.putErr = errors.New("bucket unreachable")

	_, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Content: []byte("x"),
	})
	if err == nil {
		t.Fatal("expected upload error")
	}

	// The catalog row stays visible as failed so the client can retry.
	docs, err := f.catalog.docs.Find(context.Background(), nil, repos.DocumentFilter{OwnerID: owner})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got=%d", len(docs))
	}
	if docs[0].Status != types.DocumentStatusFailed {
		t.Fatalf("status: want=%q got=%q", types.DocumentStatusFailed, docs[0].Status)
	}
	if f.jobs.count() != 0 {
		t.Fatalf("no derivations should be enqueued, got=%d", f.jobs.count())
	}
}

func TestReuploadSameContentIsNoop(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)
	content := []byte("stable content")

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Content: content,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	jobsBefore := f.jobs.count()

	again, err := f.svc.Reupload(context.Background(), owner, doc.ID, content)
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if again.ContentFingerprint != doc.ContentFingerprint {
		t.Fatal("fingerprint changed on identical content")
	}
	if f.jobs.count() != jobsBefore {
		t.Fatalf("no-op reupload enqueued work: before=%d after=%d", jobsBefore, f.jobs.count())
	}
}

func TestReuploadNewContentInvalidatesArtifacts(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Content: []byte("v1"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	// Settle the markdown derivation so there is a ready artifact to
	// invalidate; the vector one stays pending.
	pending, err := f.catalog.artifacts.LatestByStatus(context.Background(), nil, doc.ID, types.ArtifactTypeMarkdown, types.ArtifactStatusPending)
	if err != nil || pending == nil {
		t.Fatalf("pending markdown: %v %v", pending, err)
	}
	if _, err := f.artifacts.Complete(context.Background(), pending.ID, "ref", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	updated, err := f.svc.Reupload(context.Background(), owner, doc.ID, []byte("v2 with more text"))
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if updated.ContentFingerprint == doc.ContentFingerprint {
		t.Fatal("fingerprint unchanged on new content")
	}
	if !f.blobs.has(ContentKey(doc.ID, updated.ContentFingerprint)) {
		t.Fatal("new content blob missing")
	}
	// The old blob survives: a running derivation may still read it.
	if !f.blobs.has(ContentKey(doc.ID, doc.ContentFingerprint)) {
		t.Fatal("old content blob clobbered")
	}

	stale, err := f.catalog.artifacts.LatestByStatus(context.Background(), nil, doc.ID, types.ArtifactTypeMarkdown, types.ArtifactStatusStale)
	if err != nil {
		t.Fatalf("latest stale: %v", err)
	}
	if stale == nil {
		t.Fatal("ready artifact not demoted to stale on reupload")
	}
}

func TestReuploadRequiresOwner(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Content: []byte("v1"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	reader := uuid.New()
	if err := f.catalog.perms.Upsert(context.Background(), nil, &types.Permission{UserID: reader, TagID: tagID, Level: types.PermissionRead}); err != nil {
		t.Fatalf("seed read grant: %v", err)
	}
	if _, err := f.svc.Reupload(context.Background(), reader, doc.ID, []byte("v2")); !errdefs.IsPermissionDenied(err) {
		t.Fatalf("expected PermissionDenied, got=%v", err)
	}
}

func TestRequestRederivationConflictsWhilePending(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	tagID := f.seedWritableTag(t, owner)

	doc, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "a.txt", OwnerID: owner, TagIDs: []uuid.UUID{tagID}, Content: []byte("v1"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	// The upload already left a pending markdown derivation.
	if _, err := f.svc.RequestRederivation(context.Background(), owner, doc.ID, types.ArtifactTypeMarkdown); !errdefs.IsConflict(err) {
		t.Fatalf("expected Conflict, got=%v", err)
	}
}
