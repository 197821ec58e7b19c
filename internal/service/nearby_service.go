package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/geo"
	"tracking-service/internal/model"
)

const defaultNearbyLimit = 20

// NearbyService serves the dispatch-side read path: nearest-agent queries,
// an agent's current location, and per-session journey reads.
type NearbyService struct {
	sessions SessionStore
	history  HistoryStore
	index    *geo.Index
}

func NewNearbyService(sessions SessionStore, history HistoryStore, index *geo.Index) *NearbyService {
	return &NearbyService{
		sessions: sessions,
		history:  history,
		index:    index,
	}
}

// Nearby returns live agents within radiusM of the center, ascending by
// distance.
func (s *NearbyService) Nearby(ctx context.Context, principal model.Principal, lat, lon, radiusM float64, limit int) ([]geo.Match, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	center := model.Position{Latitude: lat, Longitude: lon}
	if err := center.Validate(); err != nil {
		return nil, ErrInvalidInput
	}
	if radiusM <= 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultNearbyLimit
	}

	return s.index.Nearby(lat, lon, radiusM, limit), nil
}

type AgentLocation struct {
	AgentID      uuid.UUID      `json:"agent_id"`
	Position     model.Position `json:"position"`
	LastUpdateAt time.Time      `json:"last_update_at"`
}

// CurrentLocation returns the agent's last accepted position. Dispatchers
// and customers may read it; the index is consulted first and the session
// store covers agents not yet re-indexed.
func (s *NearbyService) CurrentLocation(ctx context.Context, principal model.Principal, agentID uuid.UUID) (*AgentLocation, error) {
	if !principal.IsAdmin() && !principal.IsCustomer() {
		return nil, ErrPermissionDenied
	}

	if entry, ok := s.index.Get(agentID); ok {
		return &AgentLocation{
			AgentID:      agentID,
			Position:     entry.Position,
			LastUpdateAt: entry.LastUpdateAt,
		}, nil
	}

	session, err := s.sessions.FindLiveByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	pos := session.LastAcceptedPosition()
	if pos == nil {
		return nil, ErrNotFound
	}
	return &AgentLocation{
		AgentID:      agentID,
		Position:     *pos,
		LastUpdateAt: session.LastUpdateAt,
	}, nil
}

// History returns the ordered audit trail of one session while it is still
// retained.
func (s *NearbyService) History(ctx context.Context, principal model.Principal, sessionID uuid.UUID) ([]model.LocationHistoryEntry, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}

	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, ErrNotFound
	}

	return s.history.ListBySession(ctx, sessionID)
}

// RebuildIndex repopulates the spatial index from live session state. The
// index is a cache; this runs once at startup.
func (s *NearbyService) RebuildIndex(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListLive(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range sessions {
		pos := sessions[i].LastAcceptedPosition()
		if pos == nil {
			continue
		}
		s.index.Upsert(sessions[i].AgentID, *pos)
		count++
	}
	return count, nil
}
