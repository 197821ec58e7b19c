package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tracking-service/internal/config"
	"tracking-service/internal/geo"
)

// RetentionService purges location data tied to stopped sessions once the
// retention window has passed. Location history exists only for active
// pickups; the default window of zero makes a stopped session eligible on
// the next sweep.
type RetentionService struct {
	sessions SessionStore
	history  HistoryStore
	index    *geo.Index
	cfg      config.TrackingConfig
	log      zerolog.Logger
}

func NewRetentionService(sessions SessionStore, history HistoryStore, index *geo.Index, cfg config.TrackingConfig, log zerolog.Logger) *RetentionService {
	return &RetentionService{
		sessions: sessions,
		history:  history,
		index:    index,
		cfg:      cfg,
		log:      log,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Sweeps run on their own and never hold a lock the ingest path waits on.
func (s *RetentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.cfg.CleanupInterval).
		Dur("retention_window", s.cfg.RetentionWindow).
		Msg("retention worker started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("retention worker stopped")
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Error().Err(err).Msg("retention sweep failed")
			} else if n > 0 {
				s.log.Info().Int("purged", n).Msg("retention sweep done")
			}
		}
	}
}

// Sweep purges every stopped session past the retention window: history
// first, then a defensive index removal (stop already removed the entry),
// then the session row itself. Live sessions are never touched.
func (s *RetentionService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.RetentionWindow)
	expired, err := s.sessions.ListStoppedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	purged := 0
	for i := range expired {
		session := &expired[i]

		if err := s.history.DeleteBySession(ctx, session.ID); err != nil {
			s.log.Error().Err(err).
				Str("session_id", session.ID.String()).
				Msg("failed to purge location history")
			continue
		}

		// Stop already removed the index entry; re-check here, but leave
		// entries refreshed after stopped_at alone since they belong to a
		// newer session of the same agent.
		if entry, ok := s.index.Get(session.AgentID); ok {
			if session.StoppedAt == nil || !entry.LastUpdateAt.After(*session.StoppedAt) {
				s.index.Remove(session.AgentID)
			}
		}

		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			s.log.Error().Err(err).
				Str("session_id", session.ID.String()).
				Msg("failed to delete stopped session")
			continue
		}
		purged++
	}
	return purged, nil
}
