// Package session holds the in-progress KB request conversations, one per user.
// Sessions live only in process memory and expire after a period of inactivity.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// Recommended defaults.
const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Session is a snapshot of one user's conversation. Values returned by the
// Store are copies; mutate through Store.Update.
type Session struct {
	ID             string
	Key            string
	Conversation   models.Conversation
	Step           models.Step
	Data           map[string]string
	Files          []string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Field returns the stored value for name, or "".
func (s Session) Field(name string) string {
	return s.Data[name]
}

func (s Session) clone() Session {
	c := s
	c.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	c.Files = append([]string(nil), s.Files...)
	return c
}

// Init describes a new session.
type Init struct {
	Conversation models.Conversation
	Step         models.Step
	Data         map[string]string
}

// Patch is merged into an existing session. An empty Step leaves the step unchanged.
type Patch struct {
	Step        models.Step
	Fields      map[string]string
	AppendFiles []string
}

// DestroyReason says why a session went away.
type DestroyReason string

const (
	ReasonSubmitted DestroyReason = "submitted"
	ReasonExpired   DestroyReason = "expired"
	ReasonSwept     DestroyReason = "swept"
	ReasonReplaced  DestroyReason = "replaced"
	ReasonFailed    DestroyReason = "failed"
	ReasonCancelled DestroyReason = "cancelled"
	ReasonShutdown  DestroyReason = "shutdown"
)

// Observer is notified after sessions are created or destroyed.
type Observer interface {
	SessionCreated(s Session)
	SessionDestroyed(s Session, reason DestroyReason)
}

type entry struct {
	session Session
	timer   Timer
	gen     uint64
}

type event struct {
	session Session
	reason  DestroyReason
	created bool
}

// Store keeps one live session per user key.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	timeout  time.Duration
	clock    Clock
	logger   *slog.Logger
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore creates a store whose sessions expire after idleTimeout without activity.
func NewStore(idleTimeout time.Duration, opts ...Option) *Store {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	s := &Store{
		entries: make(map[string]*entry),
		timeout: idleTimeout,
		clock:   realClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleTimeout returns the configured inactivity limit.
func (s *Store) IdleTimeout() time.Duration {
	return s.timeout
}

// Create starts a new session for the conversation's user, destroying any
// session the user already had.
func (s *Store) Create(init Init) Session {
	key := init.Conversation.Key()
	now := s.clock.Now()

	sess := Session{
		ID:             uuid.NewString(),
		Key:            key,
		Conversation:   init.Conversation,
		Step:           init.Step,
		Data:           make(map[string]string, len(init.Data)),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	for k, v := range init.Data {
		sess.Data[k] = v
	}

	var events []event

	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		s.removeLocked(key, old)
		events = append(events, event{session: old.session.clone(), reason: ReasonReplaced})
	}
	e := &entry{session: sess}
	s.entries[key] = e
	s.armLocked(key, e)
	out := e.session.clone()
	s.mu.Unlock()

	events = append(events, event{session: out, created: true})
	s.notify(events)
	return out
}

// Get returns the user's session and slides its expiry forward. A session idle
// for longer than the timeout is destroyed and reported absent.
func (s *Store) Get(key string) (Session, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return Session{}, false
	}
	if now.Sub(e.session.LastActivityAt) > s.timeout {
		s.removeLocked(key, e)
		expired := e.session.clone()
		s.mu.Unlock()
		s.notify([]event{{session: expired, reason: ReasonExpired}})
		return Session{}, false
	}
	e.session.LastActivityAt = now
	s.armLocked(key, e)
	out := e.session.clone()
	s.mu.Unlock()

	return out, true
}

// Update merges patch into the user's session. It is a no-op returning false
// when the user has no session.
func (s *Store) Update(key string, patch Patch) (Session, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Session{}, false
	}
	if patch.Step != "" {
		e.session.Step = patch.Step
	}
	for k, v := range patch.Fields {
		e.session.Data[k] = v
	}
	e.session.Files = append(e.session.Files, patch.AppendFiles...)
	e.session.LastActivityAt = now
	s.armLocked(key, e)

	return e.session.clone(), true
}

// Destroy cancels the session's timer and removes it. It reports whether a
// session existed.
func (s *Store) Destroy(key string, reason DestroyReason) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(key, e)
	gone := e.session.clone()
	s.mu.Unlock()

	s.notify([]event{{session: gone, reason: reason}})
	return true
}

// Sweep destroys every session idle for longer than the timeout and returns how
// many were removed. Running it repeatedly is harmless.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	var events []event

	s.mu.Lock()
	for key, e := range s.entries {
		if now.Sub(e.session.LastActivityAt) > s.timeout {
			s.removeLocked(key, e)
			events = append(events, event{session: e.session.clone(), reason: ReasonSwept})
		}
	}
	s.mu.Unlock()

	s.notify(events)
	return len(events)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every timer and drops all sessions.
func (s *Store) Close() {
	var events []event

	s.mu.Lock()
	for key, e := range s.entries {
		s.removeLocked(key, e)
		events = append(events, event{session: e.session.clone(), reason: ReasonShutdown})
	}
	s.mu.Unlock()

	s.notify(events)
}

// armLocked replaces the entry's expiry timer. The callback only fires for the
// generation that armed it, so a late timer never removes a refreshed or
// replacement session.
func (s *Store) armLocked(key string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = s.clock.AfterFunc(s.timeout, func() {
		s.expire(key, e, gen)
	})
}

func (s *Store) removeLocked(key string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(s.entries, key)
}

func (s *Store) expire(key string, e *entry, gen uint64) {
	s.mu.Lock()
	current, ok := s.entries[key]
	if !ok || current != e || e.gen != gen {
		s.mu.Unlock()
		return
	}
	s.removeLocked(key, e)
	gone := e.session.clone()
	s.mu.Unlock()

	s.notify([]event{{session: gone, reason: ReasonExpired}})
}

func (s *Store) notify(events []event) {
	for _, ev := range events {
		if ev.created {
			s.logger.Info("session created", "user", ev.session.Key, "session_id", ev.session.ID)
			if s.observer != nil {
				s.observer.SessionCreated(ev.session)
			}
			continue
		}
		s.logger.Info("session destroyed",
			"user", ev.session.Key,
			"session_id", ev.session.ID,
			"reason", string(ev.reason),
			"step", ev.session.Step.String(),
		)
		if s.observer != nil {
			s.observer.SessionDestroyed(ev.session, ev.reason)
		}
	}
}
