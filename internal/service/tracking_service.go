package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/config"
	"tracking-service/internal/geo"
	"tracking-service/internal/model"
)

// SessionStore is the persistence surface the tracking services need.
// Satisfied by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *model.TrackingSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.TrackingSession, error)
	FindLive(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error)
	FindLiveByAgent(ctx context.Context, agentID uuid.UUID) (*model.TrackingSession, error)
	FindLatest(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error)
	Update(ctx context.Context, session *model.TrackingSession) error
	ListLive(ctx context.Context) ([]model.TrackingSession, error)
	ListStoppedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackingSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// HistoryStore is the persistence surface for the audit trail.
// Satisfied by repository.LocationHistoryRepository.
type HistoryStore interface {
	Append(ctx context.Context, entry *model.LocationHistoryEntry) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.LocationHistoryEntry, error)
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
}

// TrackingService owns the session lifecycle: start, the per-sample accept
// step, and stop. All session mutation flows through here.
type TrackingService struct {
	sessions  SessionStore
	index     *geo.Index
	cfg       config.TrackingConfig
	locks     *agentLocks
	stopHooks []func(agentID uuid.UUID)
}

func NewTrackingService(sessions SessionStore, index *geo.Index, cfg config.TrackingConfig) *TrackingService {
	return &TrackingService{
		sessions: sessions,
		index:    index,
		cfg:      cfg,
		locks:    newAgentLocks(),
	}
}

type StartInput struct {
	AssignmentID *string
	TargetLat    *float64
	TargetLon    *float64
}

// Start creates an ACTIVE session for the calling collector. Re-issuing
// start for the same agent and assignment returns the existing live session
// instead of erroring, so retried client requests never create duplicates.
func (s *TrackingService) Start(ctx context.Context, principal model.Principal, input StartInput) (*model.TrackingSession, error) {
	if !principal.IsCollector() {
		return nil, ErrPermissionDenied
	}

	var assignmentID *uuid.UUID
	if input.AssignmentID != nil && *input.AssignmentID != "" {
		parsed, err := uuid.Parse(*input.AssignmentID)
		if err != nil {
			return nil, ErrInvalidInput
		}
		assignmentID = &parsed
	}

	if (input.TargetLat == nil) != (input.TargetLon == nil) {
		return nil, ErrInvalidInput
	}
	if input.TargetLat != nil {
		target := model.Position{Latitude: *input.TargetLat, Longitude: *input.TargetLon}
		if err := target.Validate(); err != nil {
			return nil, ErrInvalidInput
		}
	}

	lock := s.locks.Lock(principal.UserID)
	defer s.locks.Unlock(principal.UserID, lock)

	existing, err := s.sessions.FindLive(ctx, principal.UserID, assignmentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := &model.TrackingSession{
		AgentID:        principal.UserID,
		AssignmentID:   assignmentID,
		State:          model.SessionStateActive,
		TargetLat:      input.TargetLat,
		TargetLon:      input.TargetLon,
		ArrivalRadiusM: s.cfg.ArrivalRadiusM,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Stop ends the collector's live session. Stopping when no live session
// exists is a no-op, not an error. Runs under the agent's lock so an
// in-flight ingest cycle cannot overwrite the stopped state; later submits
// fail with ErrInvalidState.
func (s *TrackingService) Stop(ctx context.Context, principal model.Principal) error {
	if !principal.IsCollector() {
		return ErrPermissionDenied
	}

	lock := s.locks.Lock(principal.UserID)
	defer s.locks.Unlock(principal.UserID, lock)

	session, err := s.sessions.FindLiveByAgent(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	return s.stopSession(ctx, session)
}

func (s *TrackingService) stopSession(ctx context.Context, session *model.TrackingSession) error {
	now := time.Now()
	session.State = model.SessionStateStopped
	session.StoppedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return err
	}
	s.index.Remove(session.AgentID)
	for _, hook := range s.stopHooks {
		hook(session.AgentID)
	}
	return nil
}

// AddStopHook registers a callback invoked after a session stops. The
// ingest service uses it to drop per-agent throttle state.
func (s *TrackingService) AddStopHook(hook func(agentID uuid.UUID)) {
	s.stopHooks = append(s.stopHooks, hook)
}

// GetOwn returns the calling collector's live session.
func (s *TrackingService) GetOwn(ctx context.Context, principal model.Principal) (*model.TrackingSession, error) {
	if !principal.IsCollector() {
		return nil, ErrPermissionDenied
	}
	session, err := s.sessions.FindLiveByAgent(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// AcceptResult describes what one sample did to a session.
type AcceptResult struct {
	Accepted          bool
	Arrived           bool
	JustArrived       bool
	Stale             bool
	DistanceToTargetM *float64
	AtTarget          bool
}

// Accept runs one candidate sample through the session state machine,
// mutating the session in memory. The caller holds the agent's lock and
// persists the session afterwards.
//
// Insignificant samples leave the session untouched. A candidate older than
// the last accepted sample is discarded as stale so that network retries
// replayed out of order cannot rewind the session. Arrival is sticky: once
// ARRIVED_AT_TARGET, movement away never reverts the state, and JustArrived
// fires only on the transition itself.
func (s *TrackingService) Accept(session *model.TrackingSession, candidate model.Position) (AcceptResult, error) {
	if session.State == model.SessionStateStopped {
		return AcceptResult{}, ErrInvalidState
	}

	result := AcceptResult{Arrived: session.State == model.SessionStateArrived}

	if session.HasTarget() {
		d := geo.DistanceMeters(candidate.Latitude, candidate.Longitude, *session.TargetLat, *session.TargetLon)
		result.DistanceToTargetM = &d
		result.AtTarget = d <= session.ArrivalRadiusM
	}

	prev := session.LastAcceptedPosition()
	if prev != nil && candidate.RecordedAt.Before(prev.RecordedAt) {
		result.Stale = true
		return result, nil
	}

	if !geo.IsSignificant(prev, candidate, s.cfg.MovementThresholdM) {
		return result, nil
	}

	session.LastAcceptedLat = &candidate.Latitude
	session.LastAcceptedLon = &candidate.Longitude
	session.LastAcceptedAccuracyM = &candidate.AccuracyM
	session.LastAcceptedAt = &candidate.RecordedAt
	result.Accepted = true

	if session.State == model.SessionStateActive && result.AtTarget {
		session.State = model.SessionStateArrived
		result.Arrived = true
		result.JustArrived = true
	}

	return result, nil
}
