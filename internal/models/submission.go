package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/Ananth-NQI/kb-request-bot/internal/utils"
)

// Submission is the audit row written for every board record the bot creates.
type Submission struct {
	gorm.Model
	RequestRef    string    `gorm:"uniqueIndex;not null" json:"request_ref"`
	UserKey       string    `gorm:"index;not null" json:"user_key"`
	ItemID        string    `gorm:"index" json:"item_id"`
	ItemURL       string    `json:"item_url"`
	Subject       string    `json:"subject"`
	TaskType      string    `json:"task_type"`
	Priority      string    `json:"priority"`
	Product       string    `json:"product"`
	UrgencyLevel  string    `json:"urgency_level"`
	Degraded      bool      `json:"degraded"`
	FilesAttached int       `json:"files_attached"`
	FilesFailed   int       `json:"files_failed"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// BeforeCreate assigns a request reference when none is set.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now()
	}
	if s.RequestRef == "" {
		s.RequestRef = utils.NewRequestRef(s.SubmittedAt)
	}
	return nil
}

// NewSubmission builds the audit row for a completed submission.
func NewSubmission(userKey string, r *SubmissionResult) *Submission {
	return &Submission{
		UserKey:       userKey,
		ItemID:        r.ItemID,
		ItemURL:       r.ItemURL,
		Subject:       r.Subject,
		TaskType:      r.TaskType,
		Priority:      r.Priority,
		Product:       r.Product,
		UrgencyLevel:  r.UrgencyLevel,
		Degraded:      r.Degraded,
		FilesAttached: r.FilesAttached,
		FilesFailed:   r.FilesFailed,
		SubmittedAt:   r.ProcessedAt,
	}
}
