package jobs

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func TestSessionSweepJobRunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewSessionSweepJob(sweeper, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	job.Start()
	job.Start() // second start is ignored

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	job.Stop()
	stopped := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load())

	job.Stop() // stopping twice is safe
}

func TestSessionSweepJobRunOnce(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewSessionSweepJob(sweeper, time.Hour, nil)

	assert.Equal(t, 1, job.RunOnce())
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
