package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/docscope/docscope-backend/internal/handlers"
	"github.com/docscope/docscope-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	TagHandler        *handlers.TagHandler
	PermissionHandler *handlers.PermissionHandler
	DocumentHandler   *handlers.DocumentHandler
	ScopeHandler      *handlers.ScopeHandler
	AllowOrigins      []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("docscope"))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/v1")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Tags
	api.POST("/tags", cfg.TagHandler.Create)
	api.GET("/tags", cfg.TagHandler.List)
	api.GET("/tags/:tag_id", cfg.TagHandler.Get)
	api.DELETE("/tags/:tag_id", cfg.TagHandler.Delete)

	// Permissions
	api.POST("/tags/:tag_id/permissions", cfg.PermissionHandler.Grant)
	api.GET("/tags/:tag_id/permissions", cfg.PermissionHandler.List)
	api.DELETE("/tags/:tag_id/permissions/:user_id", cfg.PermissionHandler.Revoke)

	// Documents
	api.POST("/documents", cfg.DocumentHandler.Upload)
	api.GET("/documents", cfg.DocumentHandler.List)
	api.GET("/documents/:document_id", cfg.DocumentHandler.Get)
	api.PUT("/documents/:document_id/content", cfg.DocumentHandler.Reupload)
	api.DELETE("/documents/:document_id", cfg.DocumentHandler.Delete)
	api.PUT("/documents/:document_id/tags/:tag_id", cfg.DocumentHandler.AttachTag)
	api.DELETE("/documents/:document_id/tags/:tag_id", cfg.DocumentHandler.DetachTag)
	api.PATCH("/documents/:document_id/retrievable", cfg.DocumentHandler.SetRetrievable)
	api.GET("/documents/:document_id/download", cfg.DocumentHandler.Download)
	api.GET("/documents/:document_id/preview", cfg.DocumentHandler.Preview)
	api.GET("/documents/:document_id/artifacts", cfg.DocumentHandler.ListArtifacts)
	api.POST("/documents/:document_id/artifacts", cfg.DocumentHandler.Rederive)

	// Scope + search
	api.POST("/scope/resolve", cfg.ScopeHandler.Resolve)
	api.POST("/search", cfg.ScopeHandler.Search)

	return router
}
