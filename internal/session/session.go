// Package session manages listing-session lifecycle. Each session owns one
// listing store plus the form schema the analysis steps have produced so far.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/event"
	"github.com/matthewbaird/mobi/internal/listing"
	"github.com/matthewbaird/mobi/internal/types"
)

// Session holds per-listing state.
type Session struct {
	ID    string
	Store *listing.Store

	events      *event.Recorder
	unsubscribe func()

	mu           sync.RWMutex
	schema       []types.FieldDescriptor
	aiMessage    string
	completion   *float64
	createdAt    time.Time
	lastActiveAt time.Time
}

func newSession(id string, initial types.ListingState, pub event.Publisher, now time.Time) *Session {
	s := &Session{
		ID:           id,
		Store:        listing.New(initial),
		events:       event.NewRecorder(id, pub),
		createdAt:    now,
		lastActiveAt: now,
	}
	s.unsubscribe = s.Store.Subscribe(s.events.Listen)
	return s
}

// Record publishes a session-level event such as a completed analysis.
func (s *Session) Record(ctx context.Context, evt event.DomainEvent) {
	s.events.Record(ctx, evt)
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.touchAt(time.Now())
}

func (s *Session) touchAt(now time.Time) {
	s.mu.Lock()
	s.lastActiveAt = now
	s.mu.Unlock()
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// LastActiveAt returns the last activity timestamp.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return s.expiredAt(time.Now(), maxAge)
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return s.idleAt(time.Now(), timeout)
}

func (s *Session) expiredAt(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(s.CreatedAt()) > maxAge
}

func (s *Session) idleAt(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActiveAt()) > timeout
}

// Schema returns the descriptors collected so far, in first-seen order.
func (s *Session) Schema() []types.FieldDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.FieldDescriptor, len(s.schema))
	copy(out, s.schema)
	return out
}

// Descriptor returns the schema entry for id.
func (s *Session) Descriptor(id string) (types.FieldDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.schema {
		if d.ID == id {
			return d, true
		}
	}
	return types.FieldDescriptor{}, false
}

// AIMessage returns the guidance message of the last analysis step.
func (s *Session) AIMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aiMessage
}

// Completion returns the last reported completion percentage, if any.
func (s *Session) Completion() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.completion == nil {
		return nil
	}
	c := *s.completion
	return &c
}

// ApplyManifest merges the manifest's schema into the session schema and
// applies its defaults and extracted values to the store. A descriptor whose
// id is already known replaces the old one in place.
func (s *Session) ApplyManifest(m types.Manifest) {
	s.mu.Lock()
	for _, d := range m.UISchema {
		s.mergeDescriptorLocked(d)
	}
	if m.AIMessage != "" {
		s.aiMessage = m.AIMessage
	}
	if m.CompletionPercentage != nil {
		c := *m.CompletionPercentage
		s.completion = &c
	}
	s.mu.Unlock()

	s.Store.ApplyManifest(m)
}

func (s *Session) mergeDescriptorLocked(d types.FieldDescriptor) {
	for i := range s.schema {
		if s.schema[i].ID == d.ID {
			s.schema[i] = d
			return
		}
	}
	s.schema = append(s.schema, d)
}

// ResetForm clears the store together with the schema and analysis state.
func (s *Session) ResetForm() {
	s.mu.Lock()
	s.schema = nil
	s.aiMessage = ""
	s.completion = nil
	s.mu.Unlock()

	s.Store.Reset()
}

func (s *Session) close() {
	s.unsubscribe()
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
	pub         event.Publisher
	now         func() time.Time
}

// NewManager creates a session manager with the given timeouts. Store
// mutations of every session are published to pub, which may be nil.
// A zero timeout disables that check.
func NewManager(maxAge, idleTimeout time.Duration, pub event.Publisher) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		pub:         pub,
		now:         time.Now,
	}
}

// Create creates a new session seeded with a copy of initial and returns it.
func (m *Manager) Create(initial types.ListingState) *Session {
	s := newSession(uuid.NewString(), initial, m.pub, m.now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID and marks it active. Returns nil if not
// found, expired or idle.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	now := m.now()
	if s.expiredAt(now, m.maxAge) || s.idleAt(now, m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	s.touchAt(now)
	return s
}

// Remove deletes a session and detaches its event recorder.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and reports how many were
// removed.
func (m *Manager) Cleanup() int {
	now := m.now()
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.expiredAt(now, m.maxAge) || s.idleAt(now, m.idleTimeout) {
			delete(m.sessions, id)
			stale = append(stale, s)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	return len(stale)
}

// Run calls Cleanup every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Cleanup(); n > 0 {
				zap.L().Info("session: removed stale sessions",
					zap.Int("removed", n),
					zap.Int("live", m.Len()),
				)
			}
		}
	}
}
