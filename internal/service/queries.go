package service

import (
	"context"
	"fmt"
	"time"

	"parking-alpr-service/internal/utils"
)

func (s *ParkingService) FindEvents(ctx context.Context, orgID int64, plateQuery *string, from, to *string, limit, offset int) ([]EventInfo, error) {
	var normalizedPlate *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			normalizedPlate = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.events.FindEvents(ctx, orgID, normalizedPlate, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	result := make([]EventInfo, 0, len(events))
	for _, e := range events {
		info := EventInfo{
			ID:              e.ID,
			PlateID:         e.PlateID,
			ExternalID:      e.ExternalID,
			CameraID:        e.CameraID,
			CameraModel:     e.CameraModel,
			Direction:       e.Direction,
			Lane:            e.Lane,
			RawPlate:        e.RawPlate,
			NormalizedPlate: e.NormalizedPlate,
			Confidence:      e.Confidence,
			VehicleColor:    e.VehicleColor,
			VehicleType:     e.VehicleType,
			SnapshotURL:     e.SnapshotURL,
			EventTime:       e.EventTime,
		}
		result = append(result, info)
	}

	return result, nil
}

func (s *ParkingService) FindSessions(ctx context.Context, orgID int64, status, plateQuery *string, limit, offset int) ([]SessionInfo, error) {
	var plateKey *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			plateKey = &normalized
		}
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.sessions.ListSessions(ctx, orgID, status, plateKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}

	result := make([]SessionInfo, 0, len(sessions))
	for _, rec := range sessions {
		result = append(result, SessionInfo{
			ID:            rec.ID,
			PlateKey:      rec.PlateKey,
			CustomerID:    rec.CustomerID,
			CarID:         rec.CarID,
			EntryEventID:  rec.EntryEventID,
			ExitEventID:   rec.ExitEventID,
			EntryTime:     rec.EntryTime,
			ExitTime:      rec.ExitTime,
			Status:        rec.Status,
			PenaltyAmount: rec.PenaltyAmount,
		})
	}
	return result, nil
}

func (s *ParkingService) FindGuests(ctx context.Context, orgID int64, status *string, limit, offset int) ([]GuestInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	guests, err := s.guests.ListGuests(ctx, orgID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find guests: %w", err)
	}

	result := make([]GuestInfo, 0, len(guests))
	for _, rec := range guests {
		result = append(result, GuestInfo{
			ID:          rec.ID,
			PlateKey:    rec.PlateKey,
			RawPlate:    rec.RawPlate,
			Status:      rec.Status,
			ExpiresAt:   rec.ExpiresAt,
			ConfirmedAt: rec.ConfirmedAt,
			CreatedAt:   rec.CreatedAt,
		})
	}
	return result, nil
}

// SweepExpiredGuests persists the terminal status for guests whose window
// lapsed. Readers already treat them as expired; this is housekeeping only.
func (s *ParkingService) SweepExpiredGuests(ctx context.Context) (int64, error) {
	swept, err := s.guests.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sweep expired guests")
		return 0, err
	}
	if swept > 0 {
		s.log.Info().Int64("swept_count", swept).Msg("swept expired guests")
	}
	return swept, nil
}

// CleanupOldEvents удаляет события старше указанного количества дней
func (s *ParkingService) CleanupOldEvents(ctx context.Context, days int) (int64, error) {
	deleted, err := s.events.DeleteOldEvents(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old events")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old events")
	}
	return deleted, nil
}

type EventInfo struct {
	ID              int64     `json:"id"`
	PlateID         *int64    `json:"plate_id,omitempty"`
	ExternalID      *string   `json:"external_id,omitempty"`
	CameraID        string    `json:"camera_id"`
	CameraModel     *string   `json:"camera_model,omitempty"`
	Direction       *string   `json:"direction,omitempty"`
	Lane            *int      `json:"lane,omitempty"`
	RawPlate        string    `json:"raw_plate"`
	NormalizedPlate string    `json:"normalized_plate"`
	Confidence      *float64  `json:"confidence,omitempty"`
	VehicleColor    *string   `json:"vehicle_color,omitempty"`
	VehicleType     *string   `json:"vehicle_type,omitempty"`
	SnapshotURL     *string   `json:"snapshot_url,omitempty"`
	EventTime       time.Time `json:"event_time"`
}

type SessionInfo struct {
	ID            int64      `json:"id"`
	PlateKey      string     `json:"plate"`
	CustomerID    *int64     `json:"customer_id,omitempty"`
	CarID         *int64     `json:"car_id,omitempty"`
	EntryEventID  int64      `json:"entry_event_id"`
	ExitEventID   *int64     `json:"exit_event_id,omitempty"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	Status        string     `json:"status"`
	PenaltyAmount float64    `json:"penalty_amount"`
}

type GuestInfo struct {
	ID          int64      `json:"id"`
	PlateKey    string     `json:"plate"`
	RawPlate    string     `json:"raw_plate"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
