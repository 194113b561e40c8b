package app

import (
	"github.com/gin-gonic/gin"

	"github.com/docscope/docscope-backend/internal/middleware"
	"github.com/docscope/docscope-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, auth *middleware.AuthMiddleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:    auth,
		TagHandler:        handlerset.Tag,
		PermissionHandler: handlerset.Permission,
		DocumentHandler:   handlerset.Document,
		ScopeHandler:      handlerset.Scope,
		AllowOrigins:      cfg.AllowOrigins,
	})
}
