package storage

import (
	"errors"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("submission not found")

// Store defines the interface for submission audit storage
type Store interface {
	SaveSubmission(sub *models.Submission) error
	GetSubmission(requestRef string) (*models.Submission, error)
	GetSubmissionsByUser(userKey string, limit int) ([]*models.Submission, error)
	CountSubmissions() (int64, error)
	Ping() error
}

// DefaultListLimit caps listings when the caller passes no limit.
const DefaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
