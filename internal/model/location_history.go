package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LocationHistoryEntry is an append-only audit record of a raw sample routed
// through a session's ingest cycle. Entries live only as long as the owning
// session survives the retention worker.
type LocationHistoryEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null;index" json:"agent_id"`

	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `gorm:"not null" json:"recorded_at"`
	ReceivedAt time.Time `gorm:"index;not null" json:"received_at"`

	// Accepted marks samples that passed the movement filter and updated
	// the session; rejected and degraded samples are kept for audit only.
	Accepted          bool     `json:"accepted"`
	Degraded          bool     `json:"degraded"`
	DistanceToTargetM *float64 `json:"distance_to_target_m"`
	AtTarget          bool     `json:"at_target"`
}

func (LocationHistoryEntry) TableName() string {
	return "location_history"
}

func (e *LocationHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	return nil
}

// Position returns the sample recorded by this entry.
func (e *LocationHistoryEntry) Position() Position {
	return Position{
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
		AccuracyM:  e.AccuracyM,
		RecordedAt: e.RecordedAt,
	}
}
