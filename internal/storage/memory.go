package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/utils"
)

// MemoryStore holds submissions in memory for local development
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
	byUser      map[string][]string

	// Counter for row IDs
	counter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]*models.Submission),
		byUser:      make(map[string][]string),
	}
}

// SaveSubmission stores a copy of sub and assigns its reference and ID.
func (m *MemoryStore) SaveSubmission(sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission is nil")
	}
	if sub.UserKey == "" {
		return fmt.Errorf("submission has no user key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = now
	}
	ref := sub.RequestRef
	if ref == "" {
		ref = utils.NewRequestRef(submittedAt)
	}
	if _, exists := m.submissions[ref]; exists {
		return fmt.Errorf("submission %s already exists", ref)
	}

	m.counter++
	sub.ID = m.counter
	sub.RequestRef = ref
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.SubmittedAt = submittedAt

	stored := *sub
	m.submissions[sub.RequestRef] = &stored
	m.byUser[sub.UserKey] = append(m.byUser[sub.UserKey], sub.RequestRef)
	return nil
}

func (m *MemoryStore) GetSubmission(requestRef string) (*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.submissions[requestRef]
	if !exists {
		return nil, ErrNotFound
	}
	out := *sub
	return &out, nil
}

// GetSubmissionsByUser returns the user's submissions, newest first.
func (m *MemoryStore) GetSubmissionsByUser(userKey string, limit int) ([]*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := m.byUser[userKey]
	subs := make([]*models.Submission, 0, len(refs))
	for _, ref := range refs {
		sub := *m.submissions[ref]
		subs = append(subs, &sub)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})

	if limit = normalizeLimit(limit); len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (m *MemoryStore) CountSubmissions() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.submissions)), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping() error {
	return nil
}
