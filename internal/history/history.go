package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fmuoria/ai-interviewer/internal/models"
)

// ReportRecord is one finalized interview in the history table
type ReportRecord struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	InterviewID  string    `gorm:"uniqueIndex;size:64;not null" json:"interview_id"`
	AverageScore float64   `json:"average_score"`
	Decision     string    `gorm:"size:64;index" json:"decision"`
	Questions    int       `json:"questions"`
	ScoreErrors  int       `json:"score_errors"`
	TimedOut     bool      `json:"timed_out"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	Entries      string    `gorm:"type:text" json:"-"`
	GeneratedAt  time.Time `gorm:"index" json:"generated_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository stores report history with GORM
type Repository struct {
	db *gorm.DB
}

// Open connects to the named driver and migrates the schema
func Open(driver, dsn string) (*Repository, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return NewRepository(db)
}

// NewRepository wraps an open connection and migrates the schema
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&ReportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Repository{db: db}, nil
}

// Record inserts or replaces the history row of a report
func (r *Repository) Record(ctx context.Context, report *models.Report) error {
	entries, err := json.Marshal(report.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}

	failures := 0
	for _, e := range report.Entries {
		if e.ScoreError != "" {
			failures++
		}
	}

	rec := ReportRecord{
		InterviewID:  report.InterviewID,
		AverageScore: report.AverageScore,
		Decision:     string(report.Decision),
		Questions:    len(report.Entries),
		ScoreErrors:  failures,
		TimedOut:     report.TimedOut,
		Feedback:     report.Feedback,
		Entries:      string(entries),
		GeneratedAt:  report.GeneratedAt,
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interview_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"average_score", "decision", "questions", "score_errors", "timed_out", "feedback", "entries", "generated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to record report: %w", err)
	}
	return nil
}

// List returns the newest records first; limit <= 0 means no limit
func (r *Repository) List(ctx context.Context, limit int) ([]ReportRecord, error) {
	var records []ReportRecord
	q := r.db.WithContext(ctx).Order("generated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return records, nil
}

// Get returns the record of one interview, or models.ErrReportNotFound
func (r *Repository) Get(ctx context.Context, interviewID string) (*ReportRecord, error) {
	var rec ReportRecord
	err := r.db.WithContext(ctx).Where("interview_id = ?", interviewID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &rec, nil
}

// Stats summarizes outcomes across all recorded interviews
type Stats struct {
	Total        int64   `json:"total"`
	Promoted     int64   `json:"promoted"`
	AverageScore float64 `json:"average_score"`
}

// Stats aggregates the history table
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	db := r.db.WithContext(ctx).Model(&ReportRecord{})
	if err := db.Count(&s.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count reports: %w", err)
	}
	if s.Total == 0 {
		return s, nil
	}
	if err := r.db.WithContext(ctx).Model(&ReportRecord{}).
		Where("decision = ?", string(models.DecisionPromote)).
		Count(&s.Promoted).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count promotions: %w", err)
	}
	var avg struct{ Avg float64 }
	if err := r.db.WithContext(ctx).Model(&ReportRecord{}).
		Select("AVG(average_score) AS avg").
		Scan(&avg).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to average scores: %w", err)
	}
	s.AverageScore = avg.Avg
	return s, nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
