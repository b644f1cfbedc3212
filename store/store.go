package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/nuxeo/docroute/routing"
	"github.com/nuxeo/docroute/types"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Driver selects the database backend of the archive store.
type Driver string

const (
	// DriverSQLite is the embedded default, pure Go
	DriverSQLite Driver = "sqlite"
	// DriverPostgres targets PostgreSQL
	DriverPostgres Driver = "postgres"
	// DriverMySQL targets MySQL
	DriverMySQL Driver = "mysql"
)

// Config configures the archive store connection.
type Config struct {
	// Driver selects sqlite, postgres or mysql
	Driver Driver `yaml:"driver" json:"driver"`

	// DSN is the driver-specific connection string
	DSN string `yaml:"dsn" json:"dsn"`

	// MaxOpenConns caps the connection pool
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// MaxIdleConns is the idle pool size
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// ConnMaxLifetime recycles connections after this age
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig returns an embedded sqlite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "docroute.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Store is the archive store for ended workflow instances and tasks.
// Archiving is idempotent: re-archiving after a partial failure upserts
// the same rows, so the engine can retry finalization safely.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database and migrates the archive
// schema.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown archive store driver %q", string(cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s, err := NewWithDB(db, logger)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ArchivedInstance{}, &ArchivedTask{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	logger.Info("archive store opened", zap.String("driver", string(cfg.Driver)))
	return s, nil
}

// NewWithDB wraps an existing gorm handle without migrating. Used by
// tests and by embedders managing their own schema.
func NewWithDB(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "archive_store")),
	}, nil
}

// ArchiveInstance implements routing.Archiver.
func (s *Store) ArchiveInstance(ctx context.Context, inst *routing.Instance) error {
	rec, err := instanceRecord(inst)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		s.logger.Error("instance archive failed",
			zap.String("instance", inst.ID), zap.Error(err))
		return types.NewError(types.ErrArchiveFailure, "instance archive write failed").
			WithCause(err).WithInstance(inst.ID).WithRetryable(true)
	}
	s.logger.Info("instance archived",
		zap.String("instance", inst.ID),
		zap.String("status", rec.Status),
	)
	return nil
}

// ArchiveTask implements routing.Archiver.
func (s *Store) ArchiveTask(ctx context.Context, task *routing.Task) error {
	rec, err := taskRecord(task)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		s.logger.Error("task archive failed",
			zap.String("task", task.ID), zap.Error(err))
		return types.NewError(types.ErrArchiveFailure, "task archive write failed").
			WithCause(err).WithInstance(task.InstanceID).WithRetryable(true)
	}
	return nil
}

// InstanceFilter narrows ListInstances; zero values match everything.
type InstanceFilter struct {
	DefinitionID string
	DocumentID   string
	Status       string
	Limit        int
}

// GetInstance returns one archived instance by id.
func (s *Store) GetInstance(ctx context.Context, instanceID string) (*ArchivedInstance, error) {
	var rec ArchivedInstance
	err := s.db.WithContext(ctx).First(&rec, "id = ?", instanceID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewErrorf(types.ErrInstanceNotFound,
			"archived instance %q not found", instanceID)
	}
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "archive read failed").WithCause(err)
	}
	return &rec, nil
}

// ListInstances returns archived instances matching the filter, most
// recently archived first.
func (s *Store) ListInstances(ctx context.Context, filter InstanceFilter) ([]ArchivedInstance, error) {
	q := s.db.WithContext(ctx).Model(&ArchivedInstance{})
	if filter.DefinitionID != "" {
		q = q.Where("definition_id = ?", filter.DefinitionID)
	}
	if filter.DocumentID != "" {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []ArchivedInstance
	if err := q.Order("archived_at DESC").Find(&out).Error; err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "archive query failed").WithCause(err)
	}
	return out, nil
}

// TasksForInstance returns the archived tasks of one instance, in
// creation order.
func (s *Store) TasksForInstance(ctx context.Context, instanceID string) ([]ArchivedTask, error) {
	var out []ArchivedTask
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "archive query failed").WithCause(err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
