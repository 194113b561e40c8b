package services

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

type contentFixture struct {
	catalog   *catalogFixture
	blobs     *fakeBlobStore
	artifacts ArtifactService
	svc       ContentService
}

func newContentFixture() *contentFixture {
	cf := newCatalogFixture(0)
	blobs := newFakeBlobStore()
	artifacts := NewArtifactService(cf.artifacts, cf.docs, logger.NewNop())
	return &contentFixture{
		catalog:   cf,
		blobs:     blobs,
		artifacts: artifacts,
		svc:       NewContentService(cf.svc, artifacts, blobs, logger.NewNop()),
	}
}

func (f *contentFixture) seedReadyDoc(t *testing.T, owner uuid.UUID, raw []byte) *types.Document {
	t.Helper()
	tagID := f.catalog.seedTag(t, "docs", owner, types.PermissionWrite)
	doc, err := f.catalog.svc.Register(context.Background(), RegisterInput{
		Filename:           "a.txt",
		OwnerID:            owner,
		TagIDs:             []uuid.UUID{tagID},
		ContentFingerprint: "fp",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.blobs.Put(context.Background(), ContentKey(doc.ID, "fp"), bytes.NewReader(raw)); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	return doc
}

func TestGetRawRoundTrip(t *testing.T) {
	f := newContentFixture()
	owner := uuid.New()
	doc := f.seedReadyDoc(t, owner, []byte("raw bytes"))

	rc, got, err := f.svc.GetRaw(context.Background(), owner, doc.ID)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	defer rc.Close()
	if got.ID != doc.ID {
		t.Fatalf("document: want=%s got=%s", doc.ID, got.ID)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "raw bytes" {
		t.Fatalf("content: got=%q", data)
	}

	// Visibility gates the blob too.
	if _, _, err := f.svc.GetRaw(context.Background(), uuid.New(), doc.ID); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got=%v", err)
	}
}

func TestMarkdownPreviewFreshAndStale(t *testing.T) {
	f := newContentFixture()
	owner := uuid.New()
	doc := f.seedReadyDoc(t, owner, []byte("raw"))

	a, err := f.artifacts.RequestDerivation(context.Background(), doc.ID, types.ArtifactTypeMarkdown, "dfp")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.blobs.Put(context.Background(), "artifacts/md", bytes.NewReader([]byte("# Title"))); err != nil {
		t.Fatalf("seed artifact blob: %v", err)
	}
	if _, err := f.artifacts.Complete(context.Background(), a.ID, "artifacts/md", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	preview, err := f.svc.GetMarkdownPreview(context.Background(), owner, doc.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Markdown != "# Title" {
		t.Fatalf("markdown: got=%q", preview.Markdown)
	}
	if preview.Stale {
		t.Fatal("fresh preview flagged stale")
	}

	// After invalidation the same artifact serves, but flagged stale.
	if err := f.artifacts.Invalidate(context.Background(), doc.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	preview, err = f.svc.GetMarkdownPreview(context.Background(), owner, doc.ID)
	if err != nil {
		t.Fatalf("stale preview: %v", err)
	}
	if !preview.Stale {
		t.Fatal("stale preview not flagged")
	}
}

func TestMarkdownPreviewMissingArtifact(t *testing.T) {
	f := newContentFixture()
	owner := uuid.New()
	doc := f.seedReadyDoc(t, owner, []byte("raw"))

	if _, err := f.svc.GetMarkdownPreview(context.Background(), owner, doc.ID); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got=%v", err)
	}
}
