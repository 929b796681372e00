package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation is returned when a write hits a unique key
	// outside of the get-or-create paths. It indicates a logic error.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrRunHasResults is returned when deleting a run whose results
	// have not been removed yet.
	ErrRunHasResults = errors.New("run still has results")
)

// Store persists runs, tests, subtests, results and comments.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	CreateRun(ctx context.Context, run *TestRun) error
	GetRun(ctx context.Context, id uint) (*TestRun, error)
	GetRunByName(ctx context.Context, name string) (*TestRun, error)
	ListRuns(ctx context.Context) ([]TestRun, error)
	ListRunSourceURLs(ctx context.Context) ([]string, error)
	SetRunsEnabled(ctx context.Context, ids []uint, enabled bool) error
	DeleteRun(ctx context.Context, id uint) error

	GetOrCreateTests(
		ctx context.Context, names []string,
	) (map[string]uint, error)
	GetOrCreateSubtests(
		ctx context.Context, keys []SubtestKey,
	) (map[SubtestKey]uint, error)

	InsertResults(ctx context.Context, results []*Result) ([]*Result, error)
	GetResult(ctx context.Context, id uint) (*Result, error)
	DeleteRunResults(ctx context.Context, runID uint) (int64, error)

	GetComment(ctx context.Context, resultID uint) (*Comment, error)
	CreateComment(ctx context.Context, resultID uint, text string) error
	UpdateComment(ctx context.Context, resultID uint, text string) error
	DeleteComment(ctx context.Context, resultID uint) error
	DeleteRunComments(ctx context.Context, runID uint) (int64, error)

	SelectPageTestIDs(ctx context.Context, q *ResultQuery) ([]uint, error)
	SelectResultRows(
		ctx context.Context, q *ResultQuery, testIDs []uint,
	) ([]ResultRow, error)

	Stats(ctx context.Context) (*Stats, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(s.cfg.SQLite.Path))
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// One connection keeps :memory: databases shared and serializes
		// writers, which sqlite would otherwise reject with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&TestRun{},
		&Test{},
		&Subtest{},
		&Result{},
		&Comment{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Stats returns row counts per table.
func (s *store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats

	counts := []struct {
		model any
		dst   *int64
	}{
		{&TestRun{}, &stats.Runs},
		{&Test{}, &stats.Tests},
		{&Subtest{}, &stats.Subtests},
		{&Result{}, &stats.Results},
		{&Comment{}, &stats.Comments},
	}

	for _, c := range counts {
		if err := s.db.WithContext(ctx).
			Model(c.model).
			Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	return &stats, nil
}

// mapError converts driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}

	if errors.Is(err, gorm.ErrForeignKeyViolated) || isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}

	return err
}

func isForeignKeyViolation(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23503")
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off
// for every new connection.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_pragma=foreign_keys(1)"
}

func isUniqueViolation(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
