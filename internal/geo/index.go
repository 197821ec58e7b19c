package geo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/model"
)

// IndexEntry is the ephemeral projection of a live session kept for nearby
// queries. It is a cache over tracking-session state, rebuilt from the
// store at startup, never persisted on its own.
type IndexEntry struct {
	AgentID      uuid.UUID
	Position     model.Position
	LastUpdateAt time.Time
}

// Match is one nearby-query result.
type Match struct {
	AgentID        uuid.UUID `json:"agent_id"`
	DistanceMeters float64   `json:"distance_m"`
	BearingDeg     float64   `json:"bearing_deg"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	LastUpdateAt   time.Time `json:"last_update_at"`
}

// Index answers "which live agents are within radius R of point P" with a
// flat haversine scan. At tens to low hundreds of concurrent agents a scan
// beats the bookkeeping of a grid or R-tree; if the fleet grows into the
// thousands, swap the scan for a spatial partition behind the same methods.
type Index struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]IndexEntry
}

func NewIndex() *Index {
	return &Index{entries: make(map[uuid.UUID]IndexEntry)}
}

func (x *Index) Upsert(agentID uuid.UUID, pos model.Position) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[agentID] = IndexEntry{
		AgentID:      agentID,
		Position:     pos,
		LastUpdateAt: time.Now(),
	}
}

func (x *Index) Remove(agentID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, agentID)
}

// Nearby returns agents within radiusM of the center, ascending by
// distance, at most limit results. limit <= 0 means no cap.
func (x *Index) Nearby(lat, lon, radiusM float64, limit int) []Match {
	x.mu.RLock()
	matches := make([]Match, 0, len(x.entries))
	for _, e := range x.entries {
		d := DistanceMeters(lat, lon, e.Position.Latitude, e.Position.Longitude)
		if d > radiusM {
			continue
		}
		matches = append(matches, Match{
			AgentID:        e.AgentID,
			DistanceMeters: d,
			BearingDeg:     Bearing(lat, lon, e.Position.Latitude, e.Position.Longitude),
			Latitude:       e.Position.Latitude,
			Longitude:      e.Position.Longitude,
			LastUpdateAt:   e.LastUpdateAt,
		})
	}
	x.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Get returns the live entry for one agent, if present.
func (x *Index) Get(agentID uuid.UUID) (IndexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[agentID]
	return e, ok
}

// Len returns the number of live entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
