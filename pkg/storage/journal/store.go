// Package journal persists sync outcomes with GORM.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"deployhook/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config mirrors the storage configuration for the journal table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Provider     string    `gorm:"column:provider;size:32;not null"`
	Organization string    `gorm:"column:organization;size:255;not null"`
	RepoName     string    `gorm:"column:repo_name;size:255;not null"`
	Ref          string    `gorm:"column:ref;size:255"`
	CommitSHA    string    `gorm:"column:commit_sha;size:64"`
	ResolvedSHA  string    `gorm:"column:resolved_sha;size:64"`
	TargetDir    string    `gorm:"column:target_dir;size:1024"`
	Outcome      string    `gorm:"column:outcome;size:32;not null"`
	ErrorStage   string    `gorm:"column:error_stage;size:32"`
	ErrorMessage string    `gorm:"column:error_message;type:text"`
	DurationMS   int64     `gorm:"column:duration_ms"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Open creates a GORM-backed sync journal.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "sync_journal"
	}
	store := &Store{
		db:    gormDB,
		table: table,
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSync appends one journal row.
func (s *Store) RecordSync(ctx context.Context, record storage.SyncRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if record.Provider == "" {
		return errors.New("provider is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data := toRow(record)
	return s.tableDB().WithContext(ctx).Create(&data).Error
}

// ListRecords returns journal rows matching the filter, newest first.
func (s *Store) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]storage.SyncRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	query := s.tableDB().WithContext(ctx)
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Organization != "" {
		query = query.Where("organization = ?", filter.Organization)
	}
	if filter.RepoName != "" {
		query = query.Where("repo_name = ?", filter.RepoName)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var data []row
	if err := query.Order("created_at desc").Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.SyncRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.SyncRecord) row {
	return row{
		Provider:     record.Provider,
		Organization: record.Organization,
		RepoName:     record.RepoName,
		Ref:          record.Ref,
		CommitSHA:    record.CommitSHA,
		ResolvedSHA:  record.ResolvedSHA,
		TargetDir:    record.TargetDir,
		Outcome:      record.Outcome,
		ErrorStage:   record.ErrorStage,
		ErrorMessage: record.ErrorMessage,
		DurationMS:   record.DurationMS,
		CreatedAt:    record.CreatedAt,
	}
}

func fromRow(data row) storage.SyncRecord {
	return storage.SyncRecord{
		Provider:     data.Provider,
		Organization: data.Organization,
		RepoName:     data.RepoName,
		Ref:          data.Ref,
		CommitSHA:    data.CommitSHA,
		ResolvedSHA:  data.ResolvedSHA,
		TargetDir:    data.TargetDir,
		Outcome:      data.Outcome,
		ErrorStage:   data.ErrorStage,
		ErrorMessage: data.ErrorMessage,
		DurationMS:   data.DurationMS,
		CreatedAt:    data.CreatedAt,
	}
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}
