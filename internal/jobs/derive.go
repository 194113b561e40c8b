package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/docscope/docscope-backend/internal/observability"
	"github.com/docscope/docscope-backend/internal/parse"
	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/platform/openai"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
	"github.com/docscope/docscope-backend/internal/repos"
	"github.com/docscope/docscope-backend/internal/services"
	"github.com/docscope/docscope-backend/internal/tokenizer"
	"github.com/docscope/docscope-backend/internal/types"
)

const (
	chunkTokenLimit = 400
	embedBatchSize  = 64
)

// DeriveHandler executes one artifact derivation: fetch the source blob,
// run the format processor, and land the output as a ready artifact. The
// artifact stays pending across retries; the timeout sweep fails it if the
// job exhausts its attempts and walks away.
type DeriveHandler struct {
	artifacts services.ArtifactService
	docRepo   repos.DocumentRepo
	blobs     blobstore.Store
	registry  *parse.Registry
	embedder  openai.Embedder
	vectors   vectorstore.Store
	tokens    tokenizer.Counter
	log       *logger.Logger
}

func NewDeriveHandler(
	artifacts services.ArtifactService,
	docRepo repos.DocumentRepo,
	blobs blobstore.Store,
	registry *parse.Registry,
	embedder openai.Embedder,
	vectors vectorstore.Store,
	tokens tokenizer.Counter,
	baseLog *logger.Logger,
) *DeriveHandler {
	return &DeriveHandler{
		artifacts: artifacts,
		docRepo:   docRepo,
		blobs:     blobs,
		registry:  registry,
		embedder:  embedder,
		vectors:   vectors,
		tokens:    tokens,
		log:       baseLog.With("handler", "DeriveHandler"),
	}
}

func (h *DeriveHandler) Run(jc *Context) {
	artifactID, err := jc.PayloadUUID("artifact_id")
	if err != nil {
		_ = jc.Fail("payload", err)
		return
	}
	documentID, err := jc.PayloadUUID("document_id")
	if err != nil {
		_ = jc.Fail("payload", err)
		return
	}
	artifactType := types.ArtifactType(jc.Payload("artifact_type"))
	ctx, span := observability.Tracer().Start(jc.Ctx, "artifact.derive")
	jc.Ctx = ctx
	defer span.End()

	contentKey := jc.Payload("content_key")
	if contentKey == "" {
		_ = jc.Fail("payload", fmt.Errorf("payload field %q missing", "content_key"))
		return
	}

	doc, err := h.docRepo.GetByID(jc.Ctx, nil, documentID)
	if err != nil {
		_ = jc.Fail("load document", err)
		return
	}
	if doc == nil || doc.Status == types.DocumentStatusDeleted {
		// The document went away between enqueue and claim; nothing left
		// to derive and nothing to retry.
		h.failArtifact(jc, artifactID, "source document deleted")
		_ = jc.Succeed()
		return
	}

	rc, err := h.blobs.Get(jc.Ctx, contentKey)
	if err != nil {
		_ = jc.Fail("fetch content", err)
		return
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		_ = jc.Fail("read content", err)
		return
	}
	jc.Heartbeat()

	proc, ok := h.registry.Lookup(doc.Filename)
	if !ok {
		h.failArtifact(jc, artifactID, "no processor registered for "+doc.Filename)
		_ = jc.Succeed()
		return
	}
	out, err := proc.Process(content, doc.MimeType)
	if err != nil {
		// Parse failures are content problems, not infrastructure ones;
		// retrying the same bytes cannot help.
		h.failArtifact(jc, artifactID, "parse: "+err.Error())
		_ = jc.Succeed()
		return
	}
	jc.Heartbeat()

	switch artifactType {
	case types.ArtifactTypeMarkdown:
		err = h.completeBlobArtifact(jc, doc, artifactID, artifactType, []byte(out.Markdown))
	case types.ArtifactTypeTabular:
		var rows []byte
		rows, err = json.Marshal(out.Rows)
		if err == nil {
			err = h.completeBlobArtifact(jc, doc, artifactID, artifactType, rows)
		}
	case types.ArtifactTypeVector:
		err = h.completeVectorArtifact(jc, doc, artifactID, out.Markdown)
	default:
		h.failArtifact(jc, artifactID, "unknown artifact type "+string(artifactType))
		_ = jc.Succeed()
		return
	}
	if err != nil {
		_ = jc.Fail("derive "+string(artifactType), err)
		return
	}
	_ = jc.Succeed()
}

func (h *DeriveHandler) completeBlobArtifact(jc *Context, doc *types.Document, artifactID uuid.UUID, artifactType types.ArtifactType, payload []byte) error {
	key := services.ArtifactKey(&types.Artifact{ID: artifactID, DocumentID: doc.ID, Type: artifactType})
	if err := h.blobs.Put(jc.Ctx, key, bytes.NewReader(payload)); err != nil {
		return err
	}
	if _, err := h.artifacts.Complete(jc.Ctx, artifactID, key, nil); err != nil {
		return err
	}
	observability.Current().ObserveDerivation(jc.Ctx, string(artifactType), "ready")
	return nil
}

func (h *DeriveHandler) completeVectorArtifact(jc *Context, doc *types.Document, artifactID uuid.UUID, markdown string) error {
	chunks := chunkMarkdown(markdown, h.tokens, chunkTokenLimit)
	if len(chunks) == 0 {
		h.failArtifact(jc, artifactID, "no text to embed")
		return nil
	}

	ids := make([]string, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		embeds, err := h.embedder.Embed(jc.Ctx, batch)
		if err != nil {
			return err
		}
		if len(embeds) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d inputs", len(embeds), len(batch))
		}
		vecs := make([]vectorstore.Vector, len(batch))
		for i := range batch {
			id := fmt.Sprintf("%s#%d", doc.ID, start+i)
			ids = append(ids, id)
			vecs[i] = vectorstore.Vector{
				ID:     id,
				Values: embeds[i],
				Metadata: map[string]any{
					services.MetaDocumentID: doc.ID.String(),
					services.MetaChunkIndex: start + i,
					services.MetaChunkText:  batch[i],
				},
			}
		}
		if err := h.vectors.Upsert(jc.Ctx, services.VectorNamespace, vecs); err != nil {
			return err
		}
		jc.Heartbeat()
	}

	// The point IDs ride on the artifact so GC can delete exactly these
	// vectors later.
	extra, err := json.Marshal(map[string]any{
		"vector_ids":  ids,
		"chunk_count": len(ids),
	})
	if err != nil {
		return err
	}
	if _, err = h.artifacts.Complete(jc.Ctx, artifactID, "", extra); err != nil {
		return err
	}
	observability.Current().ObserveDerivation(jc.Ctx, string(types.ArtifactTypeVector), "ready")
	return nil
}

func (h *DeriveHandler) failArtifact(jc *Context, artifactID uuid.UUID, reason string) {
	if err := h.artifacts.Fail(jc.Ctx, artifactID, reason); err != nil {
		h.log.Warn("artifact fail transition lost", "artifact_id", artifactID.String(), "error", err)
		return
	}
	observability.Current().ObserveDerivation(jc.Ctx, "", "failed")
}

// chunkMarkdown splits text on paragraph boundaries, packing paragraphs
// into chunks of at most limit tokens. A single oversized paragraph still
// becomes its own chunk rather than being dropped.
func chunkMarkdown(text string, counter tokenizer.Counter, limit int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curTokens = 0
	}
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t := counter.Count(p)
		if curTokens > 0 && curTokens+t > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		curTokens += t
	}
	flush()
	return chunks
}
