package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/docscope/docscope-backend/internal/platform/envutil"
	"github.com/docscope/docscope-backend/internal/platform/logger"
	"github.com/docscope/docscope-backend/internal/types"
)

type Mode string

const (
	ModePostgres Mode = "postgres"
	ModeSQLite   Mode = "sqlite"
)

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModePostgres, ModeSQLite:
		return true
	default:
		return false
	}
}

// Service owns the metadata database handle. Record sets keep the schema
// fields verbatim across backends so a sqlite deployment can be migrated to
// postgres by replaying rows.
type Service struct {
	db   *gorm.DB
	mode Mode
	log  *logger.Logger
}

func NewService(log *logger.Logger, mode Mode) (*Service, error) {
	serviceLog := log.With("service", "DBService")
	if !IsSupportedMode(mode) {
		return nil, fmt.Errorf("unsupported METADATA_DB_MODE %q (allowed: %q, %q)", mode, ModePostgres, ModeSQLite)
	}

	var (
		handle *gorm.DB
		err    error
	)
	switch mode {
	case ModePostgres:
		host := envutil.String("POSTGRES_HOST", "localhost")
		port := envutil.String("POSTGRES_PORT", "5432")
		user := envutil.String("POSTGRES_USER", "postgres")
		password := envutil.String("POSTGRES_PASSWORD", "")
		name := envutil.String("POSTGRES_NAME", "docscope")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		serviceLog.Info("Connecting to Postgres...", "host", host, "port", port, "db", name)
		handle, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case ModeSQLite:
		path := envutil.String("SQLITE_PATH", "docscope.db")
		serviceLog.Info("Opening SQLite database...", "path", path)
		handle, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	}
	if err != nil {
		serviceLog.Error("Failed to open metadata database", "mode", mode, "error", err)
		return nil, fmt.Errorf("open metadata database (%s): %w", mode, err)
	}

	return &Service{db: handle, mode: mode, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Mode() Mode { return s.mode }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating metadata tables...")
	err := s.db.AutoMigrate(
		&types.Tag{},
		&types.Permission{},
		&types.Document{},
		&types.DocumentTag{},
		&types.Artifact{},
		&types.JobRun{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

// ResolveModeFromEnv reads METADATA_DB_MODE; an unset value defaults to
// sqlite so a bare local checkout runs without a server.
func ResolveModeFromEnv() Mode {
	raw := strings.ToLower(strings.TrimSpace(envutil.String("METADATA_DB_MODE", "")))
	if raw == "" {
		return ModeSQLite
	}
	return Mode(raw)
}
