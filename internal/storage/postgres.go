package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// PostgresStore keeps submissions in Cloud SQL via GORM.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an open connection. Call database.Migrate first.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) SaveSubmission(sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if err := p.db.Create(sub).Error; err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSubmission(requestRef string) (*models.Submission, error) {
	var sub models.Submission
	err := p.db.Where("request_ref = ?", requestRef).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

func (p *PostgresStore) GetSubmissionsByUser(userKey string, limit int) ([]*models.Submission, error) {
	var subs []*models.Submission
	err := p.db.Where("user_key = ?", userKey).
		Order("submitted_at DESC").
		Order("id DESC").
		Limit(normalizeLimit(limit)).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

func (p *PostgresStore) CountSubmissions() (int64, error) {
	var n int64
	if err := p.db.Model(&models.Submission{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Ping checks the underlying connection.
func (p *PostgresStore) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
