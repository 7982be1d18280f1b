package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/utils"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	sub := &models.Submission{UserKey: "slack:U1", ItemID: "1001", Subject: "Pricing"}

	require.NoError(t, store.SaveSubmission(sub))
	assert.True(t, utils.IsRequestRef(sub.RequestRef), sub.RequestRef)
	assert.Equal(t, uint(1), sub.ID)

	got, err := store.GetSubmission(sub.RequestRef)
	require.NoError(t, err)
	assert.Equal(t, "1001", got.ItemID)

	got.Subject = "changed"
	again, _ := store.GetSubmission(sub.RequestRef)
	assert.Equal(t, "Pricing", again.Subject, "returned rows are copies")

	_, err = store.GetSubmission("KB-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsDuplicatesAndOrphans(t *testing.T) {
	store := NewMemoryStore()

	require.Error(t, store.SaveSubmission(&models.Submission{}))
	require.NoError(t, store.SaveSubmission(&models.Submission{UserKey: "slack:U1", RequestRef: "KB-1"}))
	require.Error(t, store.SaveSubmission(&models.Submission{UserKey: "slack:U1", RequestRef: "KB-1"}))
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, subject := range []string{"first", "second", "third"} {
		require.NoError(t, store.SaveSubmission(&models.Submission{
			UserKey:     "slack:U1",
			Subject:     subject,
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.SaveSubmission(&models.Submission{UserKey: "whatsapp:+15551234567", Subject: "other"}))

	subs, err := store.GetSubmissionsByUser("slack:U1", 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "third", subs[0].Subject)
	assert.Equal(t, "second", subs[1].Subject)

	all, err := store.GetSubmissionsByUser("slack:U1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := store.CountSubmissions()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, store.Ping())
}
