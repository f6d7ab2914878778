// Package storage persists resumes and their analyses in MySQL through gorm.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a resume does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to MySQL with dsn and migrates the schema.
func Open(dsn string, debug bool, log *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(level),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := New(db, log)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	s.logger.Info("connected to MySQL and migrated schema")
	return s, nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, logger: log}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Resume{}, &ResumeAnalysis{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateResume(ctx context.Context, r *Resume) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create resume: %w", err)
	}
	s.logger.Debug("resume stored", zap.Uint("resume_id", r.ID), zap.Uint("user_id", r.UserID))
	return nil
}

// GetResume returns the resume with resumeID owned by userID.
func (s *Store) GetResume(ctx context.Context, userID, resumeID uint) (*Resume, error) {
	var r Resume
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resume %d: %w", resumeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resume %d: %w", resumeID, err)
	}
	return &r, nil
}

func (s *Store) SaveAnalysis(ctx context.Context, a *ResumeAnalysis) error {
	if err := s.db.WithContext(ctx).Omit("Resume").Create(a).Error; err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	s.logger.Debug("analysis stored", zap.Uint("analysis_id", a.ID), zap.Uint("resume_id", a.ResumeID))
	return nil
}

// History returns the analyses of userID, newest first.
func (s *Store) History(ctx context.Context, userID uint) ([]ResumeAnalysis, error) {
	var out []ResumeAnalysis
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return out, nil
}
