package model

import (
	"errors"
	"time"
)

// Position is an immutable coordinate sample as reported by a device.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

var (
	ErrLatitudeOutOfRange  = errors.New("latitude out of range")
	ErrLongitudeOutOfRange = errors.New("longitude out of range")
	ErrNegativeAccuracy    = errors.New("accuracy must be non-negative")
)

func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrLatitudeOutOfRange
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrLongitudeOutOfRange
	}
	if p.AccuracyM < 0 {
		return ErrNegativeAccuracy
	}
	return nil
}
