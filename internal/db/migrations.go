package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'session_state') THEN
			CREATE TYPE session_state AS ENUM ('INACTIVE', 'ACTIVE', 'ARRIVED_AT_TARGET', 'STOPPED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS tracking_sessions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		agent_id UUID NOT NULL,
		assignment_id UUID,
		state session_state NOT NULL DEFAULT 'ACTIVE',
		target_lat DOUBLE PRECISION,
		target_lon DOUBLE PRECISION,
		arrival_radius_m DOUBLE PRECISION NOT NULL DEFAULT 10,
		last_accepted_lat DOUBLE PRECISION,
		last_accepted_lon DOUBLE PRECISION,
		last_accepted_accuracy_m DOUBLE PRECISION,
		last_accepted_at TIMESTAMPTZ,
		arrival_notified_at TIMESTAMPTZ,
		stopped_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_update_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_agent_id ON tracking_sessions (agent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_assignment_id ON tracking_sessions (assignment_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_state ON tracking_sessions (state);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_stopped_at ON tracking_sessions (stopped_at);`,
	`CREATE TABLE IF NOT EXISTS location_history (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		session_id UUID NOT NULL REFERENCES tracking_sessions (id) ON DELETE CASCADE,
		agent_id UUID NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		accuracy_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		accepted BOOLEAN NOT NULL DEFAULT false,
		degraded BOOLEAN NOT NULL DEFAULT false,
		distance_to_target_m DOUBLE PRECISION,
		at_target BOOLEAN NOT NULL DEFAULT false
	);`,
	`CREATE INDEX IF NOT EXISTS idx_location_history_session_id ON location_history (session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_location_history_agent_id ON location_history (agent_id);`,
	`CREATE INDEX IF NOT EXISTS idx_location_history_received_at ON location_history (received_at);`,
	`CREATE OR REPLACE FUNCTION set_last_update_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.last_update_at = now();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_tracking_sessions_last_update_at') THEN
			CREATE TRIGGER trg_tracking_sessions_last_update_at
				BEFORE UPDATE ON tracking_sessions
				FOR EACH ROW
				EXECUTE PROCEDURE set_last_update_at();
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
