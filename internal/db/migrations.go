package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS plates (
		id              BIGSERIAL PRIMARY KEY,
		number          TEXT NOT NULL,
		normalized      TEXT NOT NULL,
		country         TEXT,
		region          TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_plates_normalized ON plates(normalized);`,
	`CREATE TABLE IF NOT EXISTS customers (
		id                 BIGSERIAL PRIMARY KEY,
		org_id             BIGINT NOT NULL,
		name               TEXT NOT NULL,
		email              TEXT NOT NULL,
		account_registered BOOLEAN NOT NULL DEFAULT FALSE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS cars (
		id              BIGSERIAL PRIMARY KEY,
		org_id          BIGINT NOT NULL,
		customer_id     BIGINT NOT NULL REFERENCES customers(id),
		plate_key       TEXT NOT NULL,
		raw_plate       TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cars_org_plate ON cars(org_id, plate_key);`,
	`CREATE TABLE IF NOT EXISTS camera_events (
		id               BIGSERIAL PRIMARY KEY,
		org_id           BIGINT NOT NULL,
		plate_id         BIGINT REFERENCES plates(id),
		external_id      TEXT,
		camera_id        TEXT NOT NULL,
		camera_model     TEXT,
		direction        TEXT,
		lane             INT,
		raw_plate        TEXT NOT NULL,
		normalized_plate TEXT NOT NULL,
		confidence       NUMERIC(5,2),
		vehicle_color    TEXT,
		vehicle_type     TEXT,
		snapshot_url     TEXT,
		event_time       TIMESTAMPTZ NOT NULL,
		raw_payload      JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_camera_events_external_id ON camera_events(external_id);`,
	`CREATE INDEX IF NOT EXISTS idx_camera_events_plate ON camera_events(org_id, normalized_plate, event_time);`,
	`CREATE INDEX IF NOT EXISTS idx_camera_events_event_time ON camera_events(event_time);`,
	`CREATE TABLE IF NOT EXISTS guests (
		id           BIGSERIAL PRIMARY KEY,
		org_id       BIGINT NOT NULL,
		plate_key    TEXT NOT NULL,
		raw_plate    TEXT NOT NULL,
		status       TEXT NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_guests_live
		ON guests(org_id, plate_key) WHERE status <> 'expired';`,
	`CREATE INDEX IF NOT EXISTS idx_guests_expires_at ON guests(expires_at) WHERE status <> 'expired';`,
	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id              BIGSERIAL PRIMARY KEY,
		org_id          BIGINT NOT NULL,
		plate_key       TEXT NOT NULL,
		customer_id     BIGINT REFERENCES customers(id),
		car_id          BIGINT REFERENCES cars(id),
		parking_lot_id  BIGINT,
		entry_event_id  BIGINT NOT NULL REFERENCES camera_events(id),
		exit_event_id   BIGINT REFERENCES camera_events(id),
		entry_time      TIMESTAMPTZ NOT NULL,
		exit_time       TIMESTAMPTZ,
		status          TEXT NOT NULL,
		penalty_amount  NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_parking_sessions_active
		ON parking_sessions(org_id, plate_key) WHERE status = 'active';`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_plate ON parking_sessions(org_id, plate_key);`,
}

func RunMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
