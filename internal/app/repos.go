package app

import (
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/repos"
)

type Repos struct {
	Tag        repos.TagRepo
	Permission repos.PermissionRepo
	Document   repos.DocumentRepo
	Artifact   repos.ArtifactRepo
	JobRun     repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Tag:        repos.NewTagRepo(db, log),
		Permission: repos.NewPermissionRepo(db, log),
		Document:   repos.NewDocumentRepo(db, log),
		Artifact:   repos.NewArtifactRepo(db, log),
		JobRun:     repos.NewJobRunRepo(db, log),
	}
}
