package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tracking-service/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.TrackingSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TrackingSession, error) {
	var session model.TrackingSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLive returns the agent's ACTIVE or ARRIVED_AT_TARGET session for the
// given assignment (nil assignment matches untargeted sessions), or nil if
// there is none.
func (r *SessionRepository) FindLive(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error) {
	query := r.db.WithContext(ctx).
		Where("agent_id = ? AND state IN ?", agentID, []model.SessionState{model.SessionStateActive, model.SessionStateArrived})
	if assignmentID != nil {
		query = query.Where("assignment_id = ?", *assignmentID)
	} else {
		query = query.Where("assignment_id IS NULL")
	}

	var session model.TrackingSession
	err := query.Order("created_at DESC").First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindLiveByAgent returns the agent's most recent live session regardless
// of assignment, or nil.
func (r *SessionRepository) FindLiveByAgent(ctx context.Context, agentID uuid.UUID) (*model.TrackingSession, error) {
	var session model.TrackingSession
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND state IN ?", agentID, []model.SessionState{model.SessionStateActive, model.SessionStateArrived}).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindLatest returns the agent's most recent session for the given
// assignment regardless of state, or nil. The ingest path uses it to tell
// "never tracked" (lazily start) apart from "tracking was stopped" (reject).
func (r *SessionRepository) FindLatest(ctx context.Context, agentID uuid.UUID, assignmentID *uuid.UUID) (*model.TrackingSession, error) {
	query := r.db.WithContext(ctx).Where("agent_id = ?", agentID)
	if assignmentID != nil {
		query = query.Where("assignment_id = ?", *assignmentID)
	} else {
		query = query.Where("assignment_id IS NULL")
	}

	var session model.TrackingSession
	err := query.Order("created_at DESC").First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Update(ctx context.Context, session *model.TrackingSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// ListLive returns every ACTIVE or ARRIVED_AT_TARGET session. Used to
// rebuild the spatial index at startup.
func (r *SessionRepository) ListLive(ctx context.Context) ([]model.TrackingSession, error) {
	var sessions []model.TrackingSession
	err := r.db.WithContext(ctx).
		Where("state IN ?", []model.SessionState{model.SessionStateActive, model.SessionStateArrived}).
		Find(&sessions).Error
	return sessions, err
}

// ListStoppedBefore returns STOPPED sessions whose stopped_at is older than
// the cutoff. Used by the retention worker.
func (r *SessionRepository) ListStoppedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackingSession, error) {
	var sessions []model.TrackingSession
	err := r.db.WithContext(ctx).
		Where("state = ? AND stopped_at IS NOT NULL AND stopped_at <= ?", model.SessionStateStopped, cutoff).
		Order("stopped_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TrackingSession{}).Error
}
