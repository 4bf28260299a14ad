package service

import (
	"context"
	"fmt"

	"parking-alpr-service/internal/domain/parking"
	"parking-alpr-service/internal/notify"
	"parking-alpr-service/internal/utils"
)

const (
	detailDuplicateEvent      = "duplicate_event"
	detailGuestAlreadyPending = "guest_already_pending"
	detailNoMatchingSession   = "no_matching_session"
	detailExitBeforeEntry     = "exit_before_entry"
	detailDuplicateActive     = "duplicate_active_session_closed"
	detailAlreadyClosed       = "already_closed"
	detailSessionReused       = "session_reused"
)

// ProcessIncomingEvent classifies one camera event and performs the matching
// state transition exactly once. Re-submitting an event with the same
// external id is a no-op beyond re-reporting.
func (s *ParkingService) ProcessIncomingEvent(ctx context.Context, payload parking.EventPayload, orgID int64, defaultCameraModel string) (*parking.ProcessResult, error) {
	if payload.Plate == "" {
		return nil, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	if payload.CameraID == "" {
		return nil, fmt.Errorf("%w: camera_id is required", ErrInvalidInput)
	}
	if payload.EventTime.IsZero() {
		return nil, fmt.Errorf("%w: event_time is required", ErrInvalidInput)
	}
	if payload.Direction != parking.DirectionEntry && payload.Direction != parking.DirectionExit {
		return nil, fmt.Errorf("%w: direction must be entry or exit", ErrInvalidInput)
	}

	normalized, err := utils.ValidatePlate(payload.Plate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	plateID, err := s.events.GetOrCreatePlate(ctx, normalized, payload.Plate)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get or create plate")
		return nil, fmt.Errorf("%w: failed to get or create plate: %s", ErrStorageUnavailable, err)
	}

	cameraModel := payload.CameraModel
	if cameraModel == "" {
		cameraModel = defaultCameraModel
	}

	event := &parking.CameraEvent{
		PlateID:         plateID,
		OrgID:           orgID,
		EventPayload:    payload,
		NormalizedPlate: normalized,
	}
	event.CameraModel = cameraModel

	created, err := s.events.CreateCameraEvent(ctx, event)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("plate", normalized).
			Str("camera_id", payload.CameraID).
			Msg("failed to create camera event")
		return nil, fmt.Errorf("%w: failed to create camera event: %s", ErrStorageUnavailable, err)
	}

	if !created {
		// the external id was already processed; report without mutating
		s.log.Info().
			Int64("event_id", event.ID).
			Str("external_id", event.ExternalID).
			Str("plate", normalized).
			Msg("duplicate camera event ignored")
		// no action is synthesized: the first submission already performed
		// and reported it
		return &parking.ProcessResult{
			EventID: event.ID,
			PlateID: plateID,
			Plate:   normalized,
			Details: []string{detailDuplicateEvent},
		}, nil
	}

	s.log.Info().
		Int64("event_id", event.ID).
		Int64("plate_id", plateID).
		Str("plate", normalized).
		Str("raw_plate", payload.Plate).
		Str("camera_id", payload.CameraID).
		Str("direction", payload.Direction).
		Time("event_time", payload.EventTime).
		Msg("saved camera event")

	if payload.Direction == parking.DirectionExit {
		return s.processExit(ctx, event)
	}
	return s.processEntry(ctx, event)
}

func (s *ParkingService) processEntry(ctx context.Context, event *parking.CameraEvent) (*parking.ProcessResult, error) {
	result := &parking.ProcessResult{
		EventID: event.ID,
		PlateID: event.PlateID,
		Plate:   event.NormalizedPlate,
	}
	now := s.clock.Now()

	vehicle, err := s.customers.FindRegisteredVehicle(ctx, event.OrgID, event.NormalizedPlate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve registered vehicle: %s", ErrStorageUnavailable, err)
	}

	if vehicle != nil {
		return s.processCustomerEntry(ctx, event, vehicle, result)
	}

	guest, err := s.guests.FindCurrentGuest(ctx, event.OrgID, event.NormalizedPlate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve guest: %s", ErrStorageUnavailable, err)
	}

	if guest != nil && guest.ExpiredBy(now) {
		// the window lapsed but no sweep persisted it yet; retire the row so
		// the partial unique index frees the plate for a fresh record
		if err := s.expireLapsedGuest(ctx, guest); err != nil {
			return nil, err
		}
		guest = nil
	}

	if guest != nil && guest.Status == parking.GuestStatusConfirmed && guest.ActiveBy(now) {
		// returning confirmed vehicle: reuse or recreate its session
		session, sessionCreated, details, err := s.ensureActiveSession(ctx, event, nil)
		if err != nil {
			return nil, err
		}
		result.Details = details
		if session != nil {
			result.SessionID = &session.ID
		}
		result.GuestID = &guest.ID
		if sessionCreated {
			result.Action = parking.ActionSessionCreated
		} else {
			result.Action = parking.ActionSessionUpdated
		}
		s.log.Info().
			Str("plate", event.NormalizedPlate).
			Int64("guest_id", guest.ID).
			Str("action", string(result.Action)).
			Msg("confirmed guest re-detected")
		return result, nil
	}

	if guest != nil && guest.Status == parking.GuestStatusPending && guest.ActiveBy(now) {
		// duplicate detection of a pending guest: no new guest, no session,
		// guest_created must not fire twice for the same plate
		result.GuestID = &guest.ID
		result.Details = append(result.Details, detailGuestAlreadyPending)
		s.log.Debug().
			Str("plate", event.NormalizedPlate).
			Int64("guest_id", guest.ID).
			Time("expires_at", guest.ExpiresAt).
			Msg("entry for already pending guest")
		return result, nil
	}

	// unknown plate (or only a lapsed guest record): start the confirmation
	// state machine; the session is created at confirmation time, not here
	pending := parking.NewPendingGuest(event.OrgID, event.NormalizedPlate, event.Plate, now, s.windows.PendingWindow)
	guestCreated, current, err := s.guests.CreatePending(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create guest: %s", ErrStorageUnavailable, err)
	}
	if !guestCreated && current != nil && current.ExpiredBy(now) {
		// lost the insert to a row that itself lapsed in the meantime; retire
		// it and retry once
		if err := s.expireLapsedGuest(ctx, current); err != nil {
			return nil, err
		}
		guestCreated, current, err = s.guests.CreatePending(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create guest: %s", ErrStorageUnavailable, err)
		}
	}
	if !guestCreated {
		if current != nil {
			result.GuestID = &current.ID
		}
		result.Details = append(result.Details, detailGuestAlreadyPending)
		return result, nil
	}

	result.Action = parking.ActionGuestCreated
	result.GuestID = &pending.ID
	s.log.Info().
		Str("plate", event.NormalizedPlate).
		Int64("guest_id", pending.ID).
		Time("expires_at", pending.ExpiresAt).
		Msg("created pending guest")
	return result, nil
}

func (s *ParkingService) processCustomerEntry(ctx context.Context, event *parking.CameraEvent, vehicle *parking.RegisteredVehicle, result *parking.ProcessResult) (*parking.ProcessResult, error) {
	session, sessionCreated, details, err := s.ensureActiveSession(ctx, event, vehicle)
	if err != nil {
		return nil, err
	}
	result.Details = details
	if session != nil {
		result.SessionID = &session.ID
	}
	result.Action = parking.ActionCustomerDetected

	// invite owners without an activated account, once per stay; delivery
	// failure never fails event processing
	if sessionCreated && !vehicle.Customer.AccountRegistered {
		msg := notify.RegistrationEmail{
			OrgID:      event.OrgID,
			CustomerID: vehicle.Customer.ID,
			Email:      vehicle.Customer.Email,
			Plate:      event.NormalizedPlate,
			DetectedAt: event.EventTime,
		}
		go func() {
			if err := s.notifier.SendRegistrationEmail(context.Background(), msg); err != nil {
				s.log.Warn().Err(err).Int64("customer_id", msg.CustomerID).Msg("registration email dispatch failed")
			}
		}()
		result.Action = parking.ActionRegistrationEmailSent
	}

	s.log.Info().
		Str("plate", event.NormalizedPlate).
		Int64("customer_id", vehicle.Customer.ID).
		Str("action", string(result.Action)).
		Msg("registered customer detected")
	return result, nil
}

func (s *ParkingService) processExit(ctx context.Context, event *parking.CameraEvent) (*parking.ProcessResult, error) {
	result := &parking.ProcessResult{
		EventID: event.ID,
		PlateID: event.PlateID,
		Plate:   event.NormalizedPlate,
		Action:  parking.ActionExitProcessed,
	}

	session, details, err := s.authoritativeActiveSession(ctx, event.OrgID, event.NormalizedPlate)
	if err != nil {
		return nil, err
	}
	result.Details = details

	if session == nil {
		// orphan exit: record it, close nothing, fail nobody
		result.Details = append(result.Details, detailNoMatchingSession)
		s.log.Info().
			Str("plate", event.NormalizedPlate).
			Int64("event_id", event.ID).
			Msg("exit without matching active session")
		return result, nil
	}

	if event.EventTime.Before(session.EntryTime) {
		// clock skew or misordered delivery: close anyway, flag the anomaly
		result.Details = append(result.Details, detailExitBeforeEntry)
		s.log.Warn().
			Str("plate", event.NormalizedPlate).
			Int64("session_id", session.ID).
			Time("entry_time", session.EntryTime).
			Time("exit_time", event.EventTime).
			Msg("exit event precedes session entry time")
	}

	closed, err := s.sessions.Close(ctx, session.ID, event.ID, event.EventTime)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to close session: %s", ErrStorageUnavailable, err)
	}
	if !closed {
		result.Details = append(result.Details, detailAlreadyClosed)
	}
	result.SessionID = &session.ID

	s.log.Info().
		Str("plate", event.NormalizedPlate).
		Int64("session_id", session.ID).
		Int64("exit_event_id", event.ID).
		Bool("closed", closed).
		Msg("processed exit")
	return result, nil
}

// ensureActiveSession finds or creates the single active session for the
// event's plate. Creation is conditional; a concurrent writer losing the
// race falls back to the row that won.
func (s *ParkingService) ensureActiveSession(ctx context.Context, event *parking.CameraEvent, vehicle *parking.RegisteredVehicle) (*parking.ParkingSession, bool, []string, error) {
	session, details, err := s.authoritativeActiveSession(ctx, event.OrgID, event.NormalizedPlate)
	if err != nil {
		return nil, false, nil, err
	}
	if session != nil {
		return session, false, append(details, detailSessionReused), nil
	}

	candidate := &parking.ParkingSession{
		OrgID:        event.OrgID,
		PlateKey:     event.NormalizedPlate,
		EntryEventID: event.ID,
		EntryTime:    event.EventTime,
		Status:       parking.SessionStatusActive,
	}
	if vehicle != nil {
		candidate.CustomerID = &vehicle.Customer.ID
		candidate.CarID = &vehicle.Car.ID
	}

	created, current, err := s.sessions.CreateActive(ctx, candidate)
	if err != nil {
		return nil, false, nil, fmt.Errorf("%w: failed to create session: %s", ErrStorageUnavailable, err)
	}
	if created {
		return candidate, true, details, nil
	}
	if current != nil {
		return current, false, append(details, detailSessionReused), nil
	}
	return nil, false, details, nil
}

// expireLapsedGuest persists the terminal status for a guest whose window
// lapsed before any sweep saw it. Losing the guarded update to a concurrent
// transition is fine; the caller re-resolves through the conditional create.
func (s *ParkingService) expireLapsedGuest(ctx context.Context, guest *parking.Guest) error {
	fromStatus := guest.Status
	if fromStatus == parking.GuestStatusExpired {
		return nil
	}
	guest.Expire()
	if _, err := s.guests.UpdateStatus(ctx, guest, fromStatus); err != nil {
		return fmt.Errorf("%w: failed to expire lapsed guest: %s", ErrStorageUnavailable, err)
	}
	s.log.Info().
		Str("plate", guest.PlateKey).
		Int64("guest_id", guest.ID).
		Time("expires_at", guest.ExpiresAt).
		Msg("retired lapsed guest record")
	return nil
}

// authoritativeActiveSession returns the single active session for the
// plate. Should more than one exist the earliest-created one stays
// authoritative and the rest are closed as duplicates.
func (s *ParkingService) authoritativeActiveSession(ctx context.Context, orgID int64, plateKey string) (*parking.ParkingSession, []string, error) {
	actives, err := s.sessions.FindActiveByPlate(ctx, orgID, plateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to find active session: %s", ErrStorageUnavailable, err)
	}
	if len(actives) == 0 {
		return nil, nil, nil
	}

	var details []string
	if len(actives) > 1 {
		s.log.Warn().
			Str("plate", plateKey).
			Int("count", len(actives)).
			Msg("invariant violation: multiple active sessions for plate")
		now := s.clock.Now()
		for _, dup := range actives[1:] {
			if err := s.sessions.CloseDuplicate(ctx, dup.ID, now); err != nil {
				return nil, nil, fmt.Errorf("%w: failed to close duplicate session: %s", ErrStorageUnavailable, err)
			}
		}
		details = append(details, detailDuplicateActive)
	}
	return actives[0], details, nil
}
