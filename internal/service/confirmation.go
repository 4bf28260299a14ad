package service

import (
	"context"
	"errors"
	"fmt"

	"parking-alpr-service/internal/domain/parking"
	"parking-alpr-service/internal/utils"
)

// ConfirmPlate turns a pending guest into a confirmed one and opens its
// parking session. This is the only path that creates a session for a guest.
// Business outcomes are returned as *parking.ConfirmError; anything else is
// a collaborator failure.
func (s *ParkingService) ConfirmPlate(ctx context.Context, rawPlate, botToken, clientIP string, orgID int64) (*parking.ConfirmResult, error) {
	verified, err := s.verifier.Verify(ctx, botToken, clientIP)
	if err != nil || !verified {
		if err != nil {
			s.log.Warn().Err(err).Msg("bot verification errored")
		}
		return nil, &parking.ConfirmError{
			Code:    parking.CodeRecaptchaFailed,
			Message: "bot verification failed",
		}
	}

	plateKey, err := utils.ValidatePlate(rawPlate)
	if err != nil {
		return nil, &parking.ConfirmError{
			Code:    parking.CodeInvalidLicensePlate,
			Message: "license plate format is invalid",
		}
	}

	vehicle, err := s.customers.FindRegisteredVehicle(ctx, orgID, plateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve registered vehicle: %s", ErrStorageUnavailable, err)
	}
	if vehicle != nil {
		// registered owners never self-confirm as guests
		return nil, &parking.ConfirmError{
			Code:    parking.CodeRegisteredVehicle,
			Message: "this vehicle belongs to a registered customer",
		}
	}

	now := s.clock.Now()

	guest, err := s.guests.FindCurrentGuest(ctx, orgID, plateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve guest: %s", ErrStorageUnavailable, err)
	}
	if guest != nil && guest.Status == parking.GuestStatusConfirmed && guest.ActiveBy(now) {
		// a retry after a failed session create lands here; the confirmation
		// is persisted, so make sure its session exists before reporting
		if err := s.ensureConfirmedSession(ctx, orgID, plateKey, guest); err != nil {
			return nil, err
		}
		return nil, &parking.ConfirmError{
			Code:    parking.CodeAlreadyConfirmed,
			Message: "parking is already confirmed for this plate",
			Details: map[string]interface{}{"expires_at": guest.ExpiresAt},
		}
	}
	if guest == nil || guest.Status != parking.GuestStatusPending {
		// no live pending record; a lapsed confirmed guest counts as gone
		return nil, &parking.ConfirmError{
			Code:    parking.CodeNoEntryDetected,
			Message: "no entry was detected for this plate",
		}
	}
	if guest.ExpiredBy(now) {
		return nil, &parking.ConfirmError{
			Code:    parking.CodeConfirmationWindowExpired,
			Message: "the confirmation window has expired",
		}
	}

	entryEvent, err := s.events.FindLatestEntryEvent(ctx, orgID, plateKey, now.Add(-s.windows.PendingWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find entry event: %s", ErrStorageUnavailable, err)
	}
	if entryEvent == nil {
		return nil, &parking.ConfirmError{
			Code:    parking.CodeConfirmationWindowExpired,
			Message: "no recent entry detection found for this plate",
		}
	}

	if err := guest.Confirm(now, s.windows.FullParkingDuration); err != nil {
		return nil, confirmErrorFromTransition(err, guest)
	}

	updated, err := s.guests.UpdateStatus(ctx, guest, parking.GuestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to persist confirmation: %s", ErrStorageUnavailable, err)
	}
	if !updated {
		// a concurrent transition won; report what the record became
		current, err := s.guests.FindCurrentGuest(ctx, orgID, plateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to re-read guest: %s", ErrStorageUnavailable, err)
		}
		if current != nil && current.Status == parking.GuestStatusConfirmed && current.ActiveBy(now) {
			if err := s.ensureConfirmedSession(ctx, orgID, plateKey, current); err != nil {
				return nil, err
			}
			return nil, &parking.ConfirmError{
				Code:    parking.CodeAlreadyConfirmed,
				Message: "parking is already confirmed for this plate",
				Details: map[string]interface{}{"expires_at": current.ExpiresAt},
			}
		}
		return nil, &parking.ConfirmError{
			Code:    parking.CodeConfirmationWindowExpired,
			Message: "the confirmation window has expired",
		}
	}

	session := &parking.ParkingSession{
		OrgID:        orgID,
		PlateKey:     plateKey,
		EntryEventID: entryEvent.ID,
		EntryTime:    entryEvent.EventTime,
		Status:       parking.SessionStatusActive,
	}
	created, current, err := s.sessions.CreateActive(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %s", ErrStorageUnavailable, err)
	}
	if !created && current != nil {
		// an entry event racing this confirmation already opened it
		session = current
	}

	s.log.Info().
		Str("plate", plateKey).
		Int64("guest_id", guest.ID).
		Int64("session_id", session.ID).
		Int64("entry_event_id", entryEvent.ID).
		Time("valid_until", guest.ExpiresAt).
		Bool("session_created", created).
		Msg("guest confirmed parking")

	return &parking.ConfirmResult{
		Plate:      plateKey,
		SessionID:  session.ID,
		ValidUntil: guest.ExpiresAt,
	}, nil
}

// ensureConfirmedSession restores the active session of a live confirmed
// guest when it is missing, which happens when the session create failed
// right after the confirm transition was persisted. No further entry event
// will arrive for a car already inside, so the guest's retry is the only
// chance to recover.
func (s *ParkingService) ensureConfirmedSession(ctx context.Context, orgID int64, plateKey string, guest *parking.Guest) error {
	actives, err := s.sessions.FindActiveByPlate(ctx, orgID, plateKey)
	if err != nil {
		return fmt.Errorf("%w: failed to find active session: %s", ErrStorageUnavailable, err)
	}
	if len(actives) > 0 {
		return nil
	}

	entryEvent, err := s.events.FindLatestEntryEvent(ctx, orgID, plateKey, guest.CreatedAt.Add(-s.windows.PendingWindow))
	if err != nil {
		return fmt.Errorf("%w: failed to find entry event: %s", ErrStorageUnavailable, err)
	}
	if entryEvent == nil {
		return nil
	}

	session := &parking.ParkingSession{
		OrgID:        orgID,
		PlateKey:     plateKey,
		EntryEventID: entryEvent.ID,
		EntryTime:    entryEvent.EventTime,
		Status:       parking.SessionStatusActive,
	}
	created, _, err := s.sessions.CreateActive(ctx, session)
	if err != nil {
		return fmt.Errorf("%w: failed to create session: %s", ErrStorageUnavailable, err)
	}
	if created {
		s.log.Warn().
			Str("plate", plateKey).
			Int64("guest_id", guest.ID).
			Int64("session_id", session.ID).
			Int64("entry_event_id", entryEvent.ID).
			Msg("restored missing session for confirmed guest")
	}
	return nil
}

func confirmErrorFromTransition(err error, guest *parking.Guest) error {
	switch {
	case errors.Is(err, parking.ErrGuestAlreadyConfirmed):
		return &parking.ConfirmError{
			Code:    parking.CodeAlreadyConfirmed,
			Message: "parking is already confirmed for this plate",
			Details: map[string]interface{}{"expires_at": guest.ExpiresAt},
		}
	case errors.Is(err, parking.ErrGuestWindowExpired):
		return &parking.ConfirmError{
			Code:    parking.CodeConfirmationWindowExpired,
			Message: "the confirmation window has expired",
		}
	default:
		return err
	}
}
