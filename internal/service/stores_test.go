package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/model"
)

// memSessionStore is an in-memory SessionStore for unit tests. failWith, if
// set, is returned by every write operation.
type memSessionStore struct {
	mu       sync.Mutex
	seq      int
	order    map[uuid.UUID]int
	sessions map[uuid.UUID]*model.TrackingSession
	failWith error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		order:    make(map[uuid.UUID]int),
		sessions: make(map[uuid.UUID]*model.TrackingSession),
	}
}

func (m *memSessionStore) Create(ctx context.Context, session *model.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.seq++
	m.order[session.ID] = m.seq
	m.sessions[session.ID] = session
	return nil
}

func (m *memSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

func sameAssignment(session *model.TrackingSession, assignmentID *uuid.UUID) bool {
	if assignmentID == nil {
		return session.AssignmentID == nil
	}
	return session.AssignmentID != nil && *session.AssignmentID == *assignmentID
}

func (m *memSessionStore) FindLive(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.TrackingSession
	for id, s := range m.sessions {
		if s.AgentID != agentID || !s.State.Live() || !sameAssignment(s, assignmentID) {
			continue
		}
		if found == nil || m.order[id] > m.order[found.ID] {
			found = s
		}
	}
	return found, nil
}

func (m *memSessionStore) FindLiveByAgent(ctx context.Context, agentID uuid.UUID) (*model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.TrackingSession
	for id, s := range m.sessions {
		if s.AgentID != agentID || !s.State.Live() {
			continue
		}
		if found == nil || m.order[id] > m.order[found.ID] {
			found = s
		}
	}
	return found, nil
}

func (m *memSessionStore) FindLatest(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.TrackingSession
	for id, s := range m.sessions {
		if s.AgentID != agentID || !sameAssignment(s, assignmentID) {
			continue
		}
		if found == nil || m.order[id] > m.order[found.ID] {
			found = s
		}
	}
	return found, nil
}

func (m *memSessionStore) Update(ctx context.Context, session *model.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *memSessionStore) ListLive(ctx context.Context) ([]model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrackingSession
	for _, s := range m.sessions {
		if s.State.Live() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) ListStoppedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrackingSession
	for _, s := range m.sessions {
		if s.State == model.SessionStateStopped && s.StoppedAt != nil && !s.StoppedAt.After(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.sessions, id)
	delete(m.order, id)
	return nil
}

func (m *memSessionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// memHistoryStore is an in-memory HistoryStore for unit tests.
type memHistoryStore struct {
	mu       sync.Mutex
	entries  []model.LocationHistoryEntry
	failWith error
}

func newMemHistoryStore() *memHistoryStore {
	return &memHistoryStore{}
}

func (m *memHistoryStore) Append(ctx context.Context, entry *model.LocationHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memHistoryStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.LocationHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LocationHistoryEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memHistoryStore) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *memHistoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// captureNotifier records arrival events on a buffered channel so tests can
// wait for the fire-and-forget goroutine.
type captureNotifier struct {
	events chan ArrivalEvent
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{events: make(chan ArrivalEvent, 16)}
}

func (n *captureNotifier) NotifyArrival(ctx context.Context, event ArrivalEvent) error {
	n.events <- event
	return nil
}
