package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionState string

const (
	SessionStateInactive SessionState = "INACTIVE"
	SessionStateActive   SessionState = "ACTIVE"
	SessionStateArrived  SessionState = "ARRIVED_AT_TARGET"
	SessionStateStopped  SessionState = "STOPPED"
)

// Live reports whether the session still accepts position updates and
// belongs in the spatial index.
func (s SessionState) Live() bool {
	return s == SessionStateActive || s == SessionStateArrived
}

// TrackingSession ties one agent's tracking activity to zero or one active
// assignment. The last_accepted_* columns only ever hold samples that passed
// the movement filter; raw rejected samples go to location_history alone.
type TrackingSession struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	AgentID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"agent_id"`
	AssignmentID *uuid.UUID `gorm:"type:uuid;index" json:"assignment_id"`

	State SessionState `gorm:"type:session_state;not null;default:ACTIVE" json:"state"`

	TargetLat      *float64 `json:"target_lat"`
	TargetLon      *float64 `json:"target_lon"`
	ArrivalRadiusM float64  `gorm:"not null" json:"arrival_radius_m"`

	LastAcceptedLat       *float64   `json:"last_accepted_lat"`
	LastAcceptedLon       *float64   `json:"last_accepted_lon"`
	LastAcceptedAccuracyM *float64   `json:"last_accepted_accuracy_m"`
	LastAcceptedAt        *time.Time `json:"last_accepted_at"`

	ArrivalNotifiedAt *time.Time `json:"arrival_notified_at"`
	StoppedAt         *time.Time `gorm:"index" json:"stopped_at"`

	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	LastUpdateAt time.Time `gorm:"autoUpdateTime" json:"last_update_at"`
}

func (TrackingSession) TableName() string {
	return "tracking_sessions"
}

func (s *TrackingSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasTarget reports whether arrival evaluation is enabled for this session.
func (s *TrackingSession) HasTarget() bool {
	return s.TargetLat != nil && s.TargetLon != nil
}

// LastAcceptedPosition reconstructs the last position that passed the
// movement filter, or nil if none has yet.
func (s *TrackingSession) LastAcceptedPosition() *Position {
	if s.LastAcceptedLat == nil || s.LastAcceptedLon == nil || s.LastAcceptedAt == nil {
		return nil
	}
	pos := Position{
		Latitude:   *s.LastAcceptedLat,
		Longitude:  *s.LastAcceptedLon,
		RecordedAt: *s.LastAcceptedAt,
	}
	if s.LastAcceptedAccuracyM != nil {
		pos.AccuracyM = *s.LastAcceptedAccuracyM
	}
	return &pos
}
