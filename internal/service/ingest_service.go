package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tracking-service/internal/config"
	"tracking-service/internal/geo"
	"tracking-service/internal/model"
)

const (
	storeRetryAttempts = 3
	storeRetryBase     = 50 * time.Millisecond

	notifyTimeout = 10 * time.Second
)

// ArrivalEvent is the outbound contract emitted once per session when a
// collector enters the target geofence. Delivery mechanics belong to the
// notification collaborator.
type ArrivalEvent struct {
	SessionID         uuid.UUID  `json:"session_id"`
	AgentID           uuid.UUID  `json:"agent_id"`
	AssignmentID      *uuid.UUID `json:"assignment_id,omitempty"`
	Latitude          float64    `json:"latitude"`
	Longitude         float64    `json:"longitude"`
	DistanceToTargetM float64    `json:"distance_to_target_m"`
	ArrivedAt         time.Time  `json:"arrived_at"`
}

type ArrivalNotifier interface {
	NotifyArrival(ctx context.Context, event ArrivalEvent) error
}

// IngestService is the network-facing entry point for position reports:
// validation, per-agent throttling, session resolution, the accept step,
// audit persistence, index upkeep, and the arrival edge-trigger.
type IngestService struct {
	tracking *TrackingService
	sessions SessionStore
	history  HistoryStore
	index    *geo.Index
	notifier ArrivalNotifier
	limiter  *ingestLimiter
	cfg      config.TrackingConfig
	log      zerolog.Logger
}

func NewIngestService(
	tracking *TrackingService,
	sessions SessionStore,
	history HistoryStore,
	index *geo.Index,
	notifier ArrivalNotifier,
	cfg config.TrackingConfig,
	log zerolog.Logger,
) *IngestService {
	s := &IngestService{
		tracking: tracking,
		sessions: sessions,
		history:  history,
		index:    index,
		notifier: notifier,
		limiter:  newIngestLimiter(cfg.MinIngestInterval),
		cfg:      cfg,
		log:      log,
	}
	tracking.AddStopHook(s.limiter.Forget)
	return s
}

type SubmitInput struct {
	AssignmentID *string
	Latitude     float64
	Longitude    float64
	AccuracyM    float64
	RecordedAt   time.Time
}

type SubmitResult struct {
	Accepted bool               `json:"accepted"`
	Arrived  bool               `json:"arrived"`
	Degraded bool               `json:"degraded"`
	State    model.SessionState `json:"session_state"`
	Reason   string             `json:"reason,omitempty"`
}

// Submit runs one position report through the ingest pipeline. Every call
// yields a definite outcome: an accept/reject result with a reason code, or
// one of the sentinel errors.
func (s *IngestService) Submit(ctx context.Context, principal model.Principal, input SubmitInput) (*SubmitResult, error) {
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

	pos := model.Position{
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		AccuracyM:  input.AccuracyM,
		RecordedAt: input.RecordedAt,
	}
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = time.Now()
	}
	if err := pos.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sample, process := s.limiter.Observe(principal.UserID, pos, time.Now())
	if !process {
		return s.coalescedResult(ctx, principal.UserID, assignmentID)
	}

	lock := s.tracking.locks.Lock(principal.UserID)
	defer s.tracking.locks.Unlock(principal.UserID, lock)

	result, err := s.processCycle(ctx, principal.UserID, assignmentID, sample)
	if err != nil {
		// Reopen the throttle window so the client's retry of this
		// failed cycle is processed, not coalesced.
		s.limiter.Release(principal.UserID)
		return nil, err
	}
	return result, nil
}

// processCycle runs one open ingest cycle under the agent's lock.
func (s *IngestService) processCycle(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID, sample model.Position) (*SubmitResult, error) {
	session, err := s.resolveSession(ctx, agentID, assignmentID)
	if err != nil {
		return nil, err
	}

	if sample.AccuracyM > s.cfg.AccuracyCeilingM {
		return s.acceptDegraded(ctx, session, sample)
	}

	result, err := s.tracking.Accept(session, sample)
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		if err := s.withRetry(ctx, func() error {
			return s.sessions.Update(ctx, session)
		}); err != nil {
			return nil, err
		}
		s.index.Upsert(session.AgentID, sample)
	}

	entry := historyEntry(session, sample, result)
	if err := s.withRetry(ctx, func() error {
		return s.history.Append(ctx, entry)
	}); err != nil {
		return nil, err
	}

	// arrival_notified_at is set only once the event is handed off, so an
	// arrival whose cycle failed mid-persistence is re-fired by the retry.
	if session.State == model.SessionStateArrived && session.ArrivalNotifiedAt == nil {
		now := time.Now()
		session.ArrivalNotifiedAt = &now
		if err := s.withRetry(ctx, func() error {
			return s.sessions.Update(ctx, session)
		}); err != nil {
			session.ArrivalNotifiedAt = nil
			return nil, err
		}
		s.notifyArrival(session, sample, result)
	}

	reason := ""
	switch {
	case result.Stale:
		reason = "stale"
	case !result.Accepted:
		reason = "insignificant"
	}

	return &SubmitResult{
		Accepted: result.Accepted,
		Arrived:  session.State == model.SessionStateArrived,
		State:    session.State,
		Reason:   reason,
	}, nil
}

// resolveSession locates the relevant session, lazily starting an untargeted
// one when the agent has never tracked against this assignment. A stopped
// session is a hard rejection: the client must explicitly re-start.
func (s *IngestService) resolveSession(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error) {
	latest, err := s.sessions.FindLatest(ctx, agentID, assignmentID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if !latest.State.Live() {
			return nil, ErrInvalidState
		}
		return latest, nil
	}

	session := &model.TrackingSession{
		AgentID:        agentID,
		AssignmentID:   assignmentID,
		State:          model.SessionStateActive,
		ArrivalRadiusM: s.cfg.ArrivalRadiusM,
	}
	if err := s.withRetry(ctx, func() error {
		return s.sessions.Create(ctx, session)
	}); err != nil {
		return nil, err
	}
	return session, nil
}

// acceptDegraded handles samples whose reported accuracy is worse than the
// sanity ceiling: usable as a liveness signal and kept for audit, but never
// allowed to move last_accepted_position or the spatial index.
func (s *IngestService) acceptDegraded(ctx context.Context, session *model.TrackingSession, sample model.Position) (*SubmitResult, error) {
	if session.State == model.SessionStateStopped {
		return nil, ErrInvalidState
	}

	result := AcceptResult{Arrived: session.State == model.SessionStateArrived}
	if session.HasTarget() {
		d := geo.DistanceMeters(sample.Latitude, sample.Longitude, *session.TargetLat, *session.TargetLon)
		result.DistanceToTargetM = &d
	}

	entry := historyEntry(session, sample, result)
	entry.Degraded = true
	if err := s.withRetry(ctx, func() error {
		return s.history.Append(ctx, entry)
	}); err != nil {
		return nil, err
	}

	s.log.Warn().
		Str("agent_id", session.AgentID.String()).
		Float64("accuracy_m", sample.AccuracyM).
		Msg("low accuracy sample accepted for liveness only")

	return &SubmitResult{
		Accepted: false,
		Arrived:  session.State == model.SessionStateArrived,
		Degraded: true,
		State:    session.State,
		Reason:   "low_accuracy",
	}, nil
}

func (s *IngestService) coalescedResult(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*SubmitResult, error) {
	state := model.SessionStateInactive
	session, err := s.sessions.FindLive(ctx, agentID, assignmentID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		state = session.State
	}
	return &SubmitResult{
		Accepted: false,
		Arrived:  state == model.SessionStateArrived,
		State:    state,
		Reason:   "coalesced",
	}, nil
}

// notifyArrival emits the arrival event without blocking the submit
// response. A failed delivery is logged; the arrival state itself is
// already persisted on the session.
func (s *IngestService) notifyArrival(session *model.TrackingSession, sample model.Position, result AcceptResult) {
	event := ArrivalEvent{
		SessionID:    session.ID,
		AgentID:      session.AgentID,
		AssignmentID: session.AssignmentID,
		Latitude:     sample.Latitude,
		Longitude:    sample.Longitude,
		ArrivedAt:    time.Now(),
	}
	if result.DistanceToTargetM != nil {
		event.DistanceToTargetM = *result.DistanceToTargetM
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyArrival(ctx, event); err != nil {
			s.log.Error().Err(err).
				Str("session_id", event.SessionID.String()).
				Msg("arrival notification failed")
		}
	}()
}

func historyEntry(session *model.TrackingSession, sample model.Position, result AcceptResult) *model.LocationHistoryEntry {
	return &model.LocationHistoryEntry{
		SessionID:         session.ID,
		AgentID:           session.AgentID,
		Latitude:          sample.Latitude,
		Longitude:         sample.Longitude,
		AccuracyM:         sample.AccuracyM,
		RecordedAt:        sample.RecordedAt,
		ReceivedAt:        time.Now(),
		Accepted:          result.Accepted,
		DistanceToTargetM: result.DistanceToTargetM,
		AtTarget:          result.AtTarget,
	}
}

// withRetry retries a store operation with bounded exponential backoff.
// Exhausted retries surface as ErrUnavailable so the caller knows to retry
// the whole request; validation failures never reach here.
func (s *IngestService) withRetry(ctx context.Context, op func() error) error {
	var err error
	delay := storeRetryBase
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == storeRetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
