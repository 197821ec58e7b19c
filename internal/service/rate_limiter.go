package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/model"
)

type limiterEntry struct {
	lastCycle time.Time
	pending   *model.Position
}

// ingestLimiter enforces at most one processing cycle per agent per
// interval. Submissions landing inside the window are coalesced last-wins:
// the newest sample is retained and applied on the next open cycle instead
// of being queued.
type ingestLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	agents   map[uuid.UUID]*limiterEntry
}

func newIngestLimiter(interval time.Duration) *ingestLimiter {
	return &ingestLimiter{
		interval: interval,
		agents:   make(map[uuid.UUID]*limiterEntry),
	}
}

// Observe records a sample for the agent. When a processing cycle is open
// it returns (sample-to-process, true), folding in any pending coalesced
// sample that is newer than the current one. Inside the window it retains
// the sample and returns false.
func (l *ingestLimiter) Observe(agentID uuid.UUID, pos model.Position, now time.Time) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.agents[agentID]
	if !ok {
		entry = &limiterEntry{}
		l.agents[agentID] = entry
	}

	if !entry.lastCycle.IsZero() && now.Sub(entry.lastCycle) < l.interval {
		p := pos
		entry.pending = &p
		return model.Position{}, false
	}

	if entry.pending != nil && entry.pending.RecordedAt.After(pos.RecordedAt) {
		pos = *entry.pending
	}
	entry.lastCycle = now
	entry.pending = nil
	return pos, true
}

// Release reopens the agent's current cycle after a processing failure so
// the client's retry is not coalesced away.
func (l *ingestLimiter) Release(agentID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.agents[agentID]; ok {
		entry.lastCycle = time.Time{}
	}
}

// Forget drops the agent's limiter state. Called when a session stops so a
// restart is not throttled by the previous session's window.
func (l *ingestLimiter) Forget(agentID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.agents, agentID)
}

// agentLocks serializes session mutation per agent. Cross-agent operations
// never contend on the same mutex. Entries are reference-counted and the
// registry drops an agent's entry once the last holder unlocks, so the map
// does not grow with fleet churn.
type agentLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*agentLock
}

type agentLock struct {
	mu   sync.Mutex
	refs int
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[uuid.UUID]*agentLock)}
}

func (a *agentLocks) Lock(agentID uuid.UUID) *agentLock {
	a.mu.Lock()
	l, ok := a.locks[agentID]
	if !ok {
		l = &agentLock{}
		a.locks[agentID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return l
}

func (a *agentLocks) Unlock(agentID uuid.UUID, l *agentLock) {
	l.mu.Unlock()
	a.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, agentID)
	}
	a.mu.Unlock()
}
