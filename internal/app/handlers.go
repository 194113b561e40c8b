package app

import (
	"github.com/docscope/docscope-backend/internal/handlers"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

type Handlers struct {
	Tag        *handlers.TagHandler
	Permission *handlers.PermissionHandler
	Document   *handlers.DocumentHandler
	Scope      *handlers.ScopeHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	return Handlers{
		Tag:        handlers.NewTagHandler(serviceset.Tags, log),
		Permission: handlers.NewPermissionHandler(serviceset.Permissions, log),
		Document: handlers.NewDocumentHandler(
			serviceset.Catalog,
			serviceset.Ingestion,
			serviceset.Content,
			serviceset.Artifacts,
			log,
		),
		Scope: handlers.NewScopeHandler(serviceset.Scoper, serviceset.Search, log),
	}
}
