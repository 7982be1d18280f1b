package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionBeforeCreate(t *testing.T) {
	sub := &Submission{SubmittedAt: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, sub.BeforeCreate(nil))
	assert.True(t, strings.HasPrefix(sub.RequestRef, "KB-20260309-"), sub.RequestRef)

	kept := &Submission{RequestRef: "KB-20260101-DEADBEEF"}
	require.NoError(t, kept.BeforeCreate(nil))
	assert.Equal(t, "KB-20260101-DEADBEEF", kept.RequestRef)
	assert.False(t, kept.SubmittedAt.IsZero())
}
