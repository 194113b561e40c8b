package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/errdefs"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/types"
)

// In-memory repo fakes. The tx argument is ignored; services under test
// run with a nil *gorm.DB so runInTx degrades to a plain call.

type fakeTagRepo struct {
	mu   sync.Mutex
	tags map[uuid.UUID]*types.Tag
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{tags: map[uuid.UUID]*types.Tag{}}
}

func (r *fakeTagRepo) Create(ctx context.Context, tx *gorm.DB, tag *types.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tag
	r.tags[tag.ID] = &cp
	return nil
}

func (r *fakeTagRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tags[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeTagRepo) GetByNameCI(ctx context.Context, tx *gorm.DB, name string) (*types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tags {
		if strings.EqualFold(t.Name, name) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTagRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Tag
	for _, id := range ids {
		if t, ok := r.tags[id]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTagRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, id)
	return nil
}

type permKey struct {
	tagID  uuid.UUID
	userID uuid.UUID
}

type fakePermissionRepo struct {
	mu    sync.Mutex
	perms map[permKey]*types.Permission
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{perms: map[permKey]*types.Permission{}}
}

func (r *fakePermissionRepo) Upsert(ctx context.Context, tx *gorm.DB, perm *types.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *perm
	r.perms[permKey{perm.TagID, perm.UserID}] = &cp
	return nil
}

func (r *fakePermissionRepo) Get(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) (*types.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.perms[permKey{tagID, userID}]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *fakePermissionRepo) Delete(ctx context.Context, tx *gorm.DB, tagID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.perms, permKey{tagID, userID})
	return nil
}

func (r *fakePermissionRepo) DeleteByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.perms {
		if k.tagID == tagID {
			delete(r.perms, k)
		}
	}
	return nil
}

func (r *fakePermissionRepo) ListByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) ([]*types.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Permission
	for k, p := range r.perms {
		if k.tagID == tagID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePermissionRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Permission
	for k, p := range r.perms {
		if k.userID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePermissionRepo) CountByTagAndLevel(ctx context.Context, tx *gorm.DB, tagID uuid.UUID, level types.PermissionLevel) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, p := range r.perms {
		if k.tagID == tagID && p.Level == level {
			n++
		}
	}
	return n, nil
}

type fakeDocumentRepo struct {
	mu    sync.Mutex
	docs  map[uuid.UUID]*types.Document
	links map[uuid.UUID]map[uuid.UUID]bool // documentID -> tagID set
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:  map[uuid.UUID]*types.Document{},
		links: map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (r *fakeDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	cp.TagIDs = nil
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.TagIDs = r.tagIDsLocked(id)
	return &cp, nil
}

func (r *fakeDocumentRepo) Find(ctx context.Context, tx *gorm.DB, filter repos.DocumentFilter) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Document
	for id, d := range r.docs {
		if filter.Status != "" {
			if d.Status != filter.Status {
				continue
			}
		} else if !filter.IncludeDeleted && d.Status == types.DocumentStatusDeleted {
			continue
		}
		if filter.OwnerID != uuid.Nil && d.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.TagIDs) > 0 {
			matched := false
			for _, tagID := range filter.TagIDs {
				if r.links[id][tagID] {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		cp := *d
		cp.TagIDs = r.tagIDsLocked(id)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *fakeDocumentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			d.Status = v.(types.DocumentStatus)
		case "deleted_at_unix":
			d.DeletedAtUnix = v.(int64)
		case "retrievable":
			d.Retrievable = v.(bool)
		case "content_fingerprint":
			d.ContentFingerprint = v.(string)
		case "size_bytes":
			d.SizeBytes = v.(int64)
		case "token_count":
			d.TokenCount = v.(int)
		case "updated_at":
			d.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeDocumentRepo) AttachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[documentID] == nil {
		r.links[documentID] = map[uuid.UUID]bool{}
	}
	r.links[documentID][tagID] = true
	return nil
}

func (r *fakeDocumentRepo) DetachTag(ctx context.Context, tx *gorm.DB, documentID, tagID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links[documentID], tagID)
	return nil
}

func (r *fakeDocumentRepo) ListTagIDs(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tagIDsLocked(documentID), nil
}

func (r *fakeDocumentRepo) MapTagIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[uuid.UUID][]uuid.UUID{}
	for _, id := range documentIDs {
		out[id] = r.tagIDsLocked(id)
	}
	return out, nil
}

func (r *fakeDocumentRepo) DeleteTagLinksByTagID(ctx context.Context, tx *gorm.DB, tagID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.links {
		delete(set, tagID)
	}
	return nil
}

func (r *fakeDocumentRepo) ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Document
	for _, d := range r.docs {
		if d.Status == types.DocumentStatusDeleted && d.DeletedAtUnix > 0 && d.DeletedAtUnix < cutoff.Unix() {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	delete(r.links, id)
	return nil
}

func (r *fakeDocumentRepo) tagIDsLocked(documentID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for tagID := range r.links[documentID] {
		out = append(out, tagID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*types.Artifact
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{artifacts: map[uuid.UUID]*types.Artifact{}}
}

func (r *fakeArtifactRepo) Create(ctx context.Context, tx *gorm.DB, artifact *types.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *artifact
	r.artifacts[artifact.ID] = &cp
	return nil
}

func (r *fakeArtifactRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.artifacts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeArtifactRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Artifact
	for _, a := range r.artifacts {
		if a.DocumentID == documentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeArtifactRepo) ListByDocumentAndType(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType) ([]*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Artifact
	for _, a := range r.artifacts {
		if a.DocumentID == documentID && a.Type == artifactType {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeArtifactRepo) LatestByStatus(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType types.ArtifactType, status types.ArtifactStatus) (*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.Artifact
	for _, a := range r.artifacts {
		if a.DocumentID != documentID || a.Type != artifactType || a.Status != status {
			continue
		}
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeArtifactRepo) TransitionCAS(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromStatus types.ArtifactStatus, version int64, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok || a.Status != fromStatus || a.Version != version {
		return false, nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			a.Status = v.(types.ArtifactStatus)
		case "storage_ref":
			a.StorageRef = v.(string)
		case "reason":
			a.Reason = v.(string)
		case "extra":
			a.Extra = datatypes.JSON(v.([]byte))
		case "updated_at":
			a.UpdatedAt = v.(time.Time)
		}
	}
	a.Version++
	return true, nil
}

func (r *fakeArtifactRepo) MarkDeletedByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.artifacts {
		if a.DocumentID == documentID && a.Status != types.ArtifactStatusDeleted {
			a.Status = types.ArtifactStatusDeleted
			a.Version++
		}
	}
	return nil
}

func (r *fakeArtifactRepo) ListPendingOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Artifact
	for _, a := range r.artifacts {
		if a.Status == types.ArtifactStatusPending && a.CreatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeArtifactRepo) ListDeletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Artifact
	for _, a := range r.artifacts {
		if a.Status == types.ArtifactStatusDeleted && a.UpdatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeArtifactRepo) HardDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.artifacts, id)
	return nil
}

type fakeJobRunRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.JobRun
}

func newFakeJobRunRepo() *fakeJobRunRepo {
	return &fakeJobRunRepo{jobs: map[uuid.UUID]*types.JobRun{}}
}

func (r *fakeJobRunRepo) Create(ctx context.Context, tx *gorm.DB, job *types.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeJobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (r *fakeJobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeJobRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func (r *fakeJobRunRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// fakeBlobStore keeps blobs in memory and records deletions.
type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
	putErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: map[string][]byte{}}
}

func (s *fakeBlobStore) Put(ctx context.Context, key string, rd io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return nil
}

func (s *fakeBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, &errdefs.NotFound{Resource: "blob", ID: key}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeBlobStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok
}

// fakeVectorStore records upserts and deletions per namespace.
type fakeVectorStore struct {
	mu      sync.Mutex
	points  map[string]vectorstore.Vector // id -> vector
	deleted []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]vectorstore.Vector{}}
}

func (s *fakeVectorStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		s.points[v.ID] = v
	}
	return nil
}

func (s *fakeVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectorstore.Match
	for id, v := range s.points {
		out = append(out, vectorstore.Match{ID: id, Score: 1, Metadata: v.Metadata})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (s *fakeVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}
