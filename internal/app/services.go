package app

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/jobs"
	"github.com/docscope/docscope-backend/internal/parse"
	"github.com/docscope/docscope-backend/internal/platform/blobstore"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/platform/openai"
	"github.com/docscope/docscope-backend/internal/platform/vectorstore"
	"github.com/docscope/docscope-backend/internal/services"
	"github.com/docscope/docscope-backend/internal/tokenizer"
	"github.com/docscope/docscope-backend/internal/types"
)

type Services struct {
	Permissions services.PermissionService
	Tags        services.TagService
	Catalog     services.CatalogService
	Artifacts   services.ArtifactService
	Scoper      services.ScoperService
	Ingestion   services.IngestionService
	Content     services.ContentService
	Search      services.SearchService
	GC          services.GCService

	JobWorker *jobs.Worker
	Sweeper   *jobs.Sweeper
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	blobs blobstore.Store,
	vectors vectorstore.Store,
	embedder openai.Embedder,
) (Services, error) {
	var cache *services.PermissionCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		cache = services.NewPermissionCache(rdb, cfg.PermCacheTTL, log)
	}

	registry := parse.NewDefaultRegistry()
	tokens := tokenizer.New(log)

	perms := services.NewPermissionService(reposet.Tag, reposet.Permission, cache, log)
	tags := services.NewTagService(db, reposet.Tag, reposet.Permission, reposet.Document, perms, cache, log)
	catalog := services.NewCatalogService(db, reposet.Document, reposet.Tag, reposet.Artifact, perms, cfg.MaxTagTokens, log)
	artifacts := services.NewArtifactService(reposet.Artifact, reposet.Document, log)
	scoper := services.NewScoperService(reposet.Document, perms, cfg.MaxScopeTokens, log)
	ingestion := services.NewIngestionService(catalog, artifacts, reposet.Document, reposet.JobRun, blobs, registry, tokens, log)
	content := services.NewContentService(catalog, artifacts, blobs, log)
	search := services.NewSearchService(scoper, embedder, vectors, log)
	gc := services.NewGCService(reposet.Document, reposet.Artifact, blobs, vectors, cfg.GCRetention, log)

	jobRegistry := jobs.NewRegistry()
	jobRegistry.Register(types.JobTypeArtifactDerive, jobs.NewDeriveHandler(
		artifacts, reposet.Document, blobs, registry, embedder, vectors, tokens, log,
	))
	worker := jobs.NewWorker(db, log, reposet.JobRun, jobRegistry)
	sweeper := jobs.NewSweeper(artifacts, gc, cfg.DerivationTimeout, log)

	return Services{
		Permissions: perms,
		Tags:        tags,
		Catalog:     catalog,
		Artifacts:   artifacts,
		Scoper:      scoper,
		Ingestion:   ingestion,
		Content:     content,
		Search:      search,
		GC:          gc,
		JobWorker:   worker,
		Sweeper:     sweeper,
	}, nil
}
