package jobs

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper removes idle sessions and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// SessionSweepJob periodically sweeps idle sessions. It backs up the per-session
// expiry timers so a missed timer can never leak a session.
type SessionSweepJob struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	isRunning bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSessionSweepJob creates a sweep job running every interval.
func NewSessionSweepJob(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sweeping in the background.
func (j *SessionSweepJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning {
		j.logger.Warn("session sweep job already running")
		return
	}
	j.isRunning = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(j.stop, j.done)
	j.logger.Info("session sweep job started", "interval", j.interval.String())
}

// Stop halts the job and waits for the loop to exit.
func (j *SessionSweepJob) Stop() {
	j.mu.Lock()
	if !j.isRunning {
		j.mu.Unlock()
		return
	}
	j.isRunning = false
	close(j.stop)
	done := j.done
	j.mu.Unlock()

	<-done
	j.logger.Info("session sweep job stopped")
}

// RunOnce performs a single sweep.
func (j *SessionSweepJob) RunOnce() int {
	n := j.sweeper.Sweep()
	if n > 0 {
		j.logger.Info("swept idle sessions", "count", n)
	}
	return n
}

func (j *SessionSweepJob) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}
