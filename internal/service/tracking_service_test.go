package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"tracking-service/internal/config"
	"tracking-service/internal/geo"
	"tracking-service/internal/model"
)

func testTrackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		MovementThresholdM: 10,
		ArrivalRadiusM:     10,
		MinIngestInterval:  0,
		AccuracyCeilingM:   1000,
		RetentionWindow:    0,
		CleanupInterval:    time.Minute,
	}
}

func collectorPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleCollector}
}

func adminPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
}

func samplePosition(lat, lon float64) model.Position {
	return model.Position{Latitude: lat, Longitude: lon, AccuracyM: 5, RecordedAt: time.Now()}
}

// northOf returns a position moved the given number of meters due north.
func northOf(p model.Position, meters float64) model.Position {
	dLat := meters / 6371000.0 * 180 / math.Pi
	return model.Position{
		Latitude:   p.Latitude + dLat,
		Longitude:  p.Longitude,
		AccuracyM:  p.AccuracyM,
		RecordedAt: time.Now(),
	}
}

func newTestTrackingService() (*TrackingService, *memSessionStore, *geo.Index) {
	sessions := newMemSessionStore()
	index := geo.NewIndex()
	return NewTrackingService(sessions, index, testTrackingConfig()), sessions, index
}

func TestStartIdempotent(t *testing.T) {
	svc, sessions, _ := newTestTrackingService()
	principal := collectorPrincipal()
	assignment := uuid.New().String()

	input := StartInput{AssignmentID: &assignment}
	first, err := svc.Start(context.Background(), principal, input)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := svc.Start(context.Background(), principal, input)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("repeated start created a new session: %v vs %v", first.ID, second.ID)
	}
	if sessions.count() != 1 {
		t.Errorf("store holds %d sessions, want 1", sessions.count())
	}
	if first.State != model.SessionStateActive {
		t.Errorf("new session state = %v, want ACTIVE", first.State)
	}
}

func TestStartRejectsNonCollector(t *testing.T) {
	svc, _, _ := newTestTrackingService()

	_, err := svc.Start(context.Background(), adminPrincipal(), StartInput{})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestStartRejectsHalfTarget(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	lat := 27.7172

	_, err := svc.Start(context.Background(), collectorPrincipal(), StartInput{TargetLat: &lat})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAcceptFirstSampleAlwaysSignificant(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	session := &model.TrackingSession{State: model.SessionStateActive, ArrivalRadiusM: 10}

	result, err := svc.Accept(session, samplePosition(27.7172, 85.3240))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !result.Accepted {
		t.Error("first sample not accepted")
	}
	if session.LastAcceptedLat == nil {
		t.Error("last accepted position not set")
	}
}

func TestAcceptRejectsJitter(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	session := &model.TrackingSession{State: model.SessionStateActive, ArrivalRadiusM: 10}

	base := samplePosition(27.7172, 85.3240)
	if _, err := svc.Accept(session, base); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	result, err := svc.Accept(session, northOf(base, 3))
	if err != nil {
		t.Fatalf("Accept jitter: %v", err)
	}
	if result.Accepted {
		t.Error("3 m jitter was accepted")
	}
	if *session.LastAcceptedLat != base.Latitude {
		t.Error("jitter moved last accepted position")
	}
}

func TestAcceptArrivalStickyAndEdgeTriggered(t *testing.T) {
	svc, _, _ := newTestTrackingService()

	target := samplePosition(27.7172, 85.3240)
	session := &model.TrackingSession{
		State:          model.SessionStateActive,
		TargetLat:      &target.Latitude,
		TargetLon:      &target.Longitude,
		ArrivalRadiusM: 10,
	}

	// Approach from 500 m out, then arrive.
	far := northOf(target, 500)
	if _, err := svc.Accept(session, far); err != nil {
		t.Fatalf("Accept far: %v", err)
	}

	atTarget := northOf(target, 2)
	result, err := svc.Accept(session, atTarget)
	if err != nil {
		t.Fatalf("Accept at target: %v", err)
	}
	if !result.JustArrived || !result.Arrived {
		t.Fatalf("expected arrival transition, got %+v", result)
	}
	if session.State != model.SessionStateArrived {
		t.Fatalf("state = %v, want ARRIVED_AT_TARGET", session.State)
	}

	// Moving far away must not revert the state, and must not re-fire
	// the arrival edge.
	awayAgain := northOf(target, 900)
	result, err = svc.Accept(session, awayAgain)
	if err != nil {
		t.Fatalf("Accept away: %v", err)
	}
	if session.State != model.SessionStateArrived {
		t.Errorf("arrival not sticky: state = %v", session.State)
	}
	if result.JustArrived {
		t.Error("arrival edge fired again after the transition")
	}
	if !result.Arrived {
		t.Error("result must still report arrived")
	}
}

func TestAcceptStoppedSession(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	session := &model.TrackingSession{State: model.SessionStateStopped}

	_, err := svc.Accept(session, samplePosition(27.7172, 85.3240))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestAcceptDiscardsStaleSample(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	session := &model.TrackingSession{State: model.SessionStateActive, ArrivalRadiusM: 10}

	current := samplePosition(27.7172, 85.3240)
	if _, err := svc.Accept(session, current); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	stale := northOf(current, 100)
	stale.RecordedAt = current.RecordedAt.Add(-time.Minute)
	result, err := svc.Accept(session, stale)
	if err != nil {
		t.Fatalf("Accept stale: %v", err)
	}
	if result.Accepted || !result.Stale {
		t.Errorf("stale sample result = %+v, want discarded as stale", result)
	}
	if *session.LastAcceptedLat != current.Latitude {
		t.Error("stale sample rewound the session")
	}
}

func TestStopIsIdempotentAndRemovesIndexEntry(t *testing.T) {
	svc, _, index := newTestTrackingService()
	principal := collectorPrincipal()

	session, err := svc.Start(context.Background(), principal, StartInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	index.Upsert(principal.UserID, samplePosition(27.7172, 85.3240))

	if err := svc.Stop(context.Background(), principal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := index.Get(principal.UserID); ok {
		t.Error("stop left the agent in the spatial index")
	}

	refreshed, err := svc.sessions.GetByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.State != model.SessionStateStopped || refreshed.StoppedAt == nil {
		t.Errorf("session not stopped: %+v", refreshed)
	}

	// Stopping again is a no-op, not an error.
	if err := svc.Stop(context.Background(), principal); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestGetOwn(t *testing.T) {
	svc, _, _ := newTestTrackingService()
	principal := collectorPrincipal()

	if _, err := svc.GetOwn(context.Background(), principal); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound before start", err)
	}

	started, err := svc.Start(context.Background(), principal, StartInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, err := svc.GetOwn(context.Background(), principal)
	if err != nil {
		t.Fatalf("GetOwn: %v", err)
	}
	if got.ID != started.ID {
		t.Errorf("GetOwn returned %v, want %v", got.ID, started.ID)
	}
}
