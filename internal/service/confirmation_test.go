package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-alpr-service/internal/domain/parking"
)

func pendingGuestAt(created time.Time) *parking.Guest {
	return &parking.Guest{
		ID:        10,
		OrgID:     testOrg,
		PlateKey:  "BAB1234",
		Status:    parking.GuestStatusPending,
		ExpiresAt: created.Add(30 * time.Minute),
		CreatedAt: created,
	}
}

func entryEventAt(at time.Time) *parking.CameraEvent {
	e := &parking.CameraEvent{ID: 100, OrgID: testOrg, NormalizedPlate: "BAB1234"}
	e.EventTime = at
	e.Direction = parking.DirectionEntry
	return e
}

func confirmErr(t *testing.T, err error) *parking.ConfirmError {
	t.Helper()
	var ce *parking.ConfirmError
	require.True(t, errors.As(err, &ce), "expected a ConfirmError, got %v", err)
	return ce
}

func TestConfirmRecaptchaFailed(t *testing.T) {
	svc, deps := newTestService()
	deps.verifier.ok = false

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "bad-token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeRecaptchaFailed, confirmErr(t, err).Code)
}

func TestConfirmVerifierTimeoutIsFailure(t *testing.T) {
	svc, deps := newTestService()
	deps.verifier.ok = false
	deps.verifier.err = context.DeadlineExceeded

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeRecaptchaFailed, confirmErr(t, err).Code)
}

func TestConfirmInvalidPlate(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ConfirmPlate(context.Background(), "-", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeInvalidLicensePlate, confirmErr(t, err).Code)
}

func TestConfirmRegisteredVehicle(t *testing.T) {
	svc, deps := newTestService()

	deps.customers.FindRegisteredVehicleFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.RegisteredVehicle, error) {
		return &parking.RegisteredVehicle{Customer: parking.Customer{ID: 7}}, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeRegisteredVehicle, confirmErr(t, err).Code)
}

func TestConfirmAlreadyConfirmed(t *testing.T) {
	svc, deps := newTestService()

	validUntil := testNow.Add(20 * time.Hour)
	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return &parking.Guest{ID: 10, Status: parking.GuestStatusConfirmed, ExpiresAt: validUntil}, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	ce := confirmErr(t, err)
	assert.Equal(t, parking.CodeAlreadyConfirmed, ce.Code)
	assert.Equal(t, validUntil, ce.Details["expires_at"])
}

func TestConfirmNoPendingGuest(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeNoEntryDetected, confirmErr(t, err).Code)
}

func TestConfirmLapsedConfirmedGuestCountsAsGone(t *testing.T) {
	svc, deps := newTestService()

	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return &parking.Guest{ID: 10, Status: parking.GuestStatusConfirmed, ExpiresAt: testNow.Add(-time.Hour)}, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeNoEntryDetected, confirmErr(t, err).Code)
}

func TestConfirmWindowBoundaries(t *testing.T) {
	created := testNow.Add(-30 * time.Minute)

	t.Run("one second past the deadline fails", func(t *testing.T) {
		svc, deps := newTestService()
		deps.clock.now = created.Add(30*time.Minute + time.Second)
		deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
			return pendingGuestAt(created), nil
		}

		_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
		assert.Equal(t, parking.CodeConfirmationWindowExpired, confirmErr(t, err).Code)
	})

	t.Run("one second before the deadline succeeds", func(t *testing.T) {
		svc, deps := newTestService()
		now := created.Add(30*time.Minute - time.Second)
		deps.clock.now = now
		deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
			return pendingGuestAt(created), nil
		}
		deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
			return entryEventAt(created), nil
		}

		result, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
		require.NoError(t, err)
		assert.Equal(t, now.Add(24*time.Hour), result.ValidUntil)
	})
}

func TestConfirmNoEntryEventInWindow(t *testing.T) {
	svc, deps := newTestService()

	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return pendingGuestAt(testNow.Add(-5 * time.Minute)), nil
	}
	deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
		return nil, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeConfirmationWindowExpired, confirmErr(t, err).Code)
}

func TestConfirmSuccessCreatesSessionFromEntryEvent(t *testing.T) {
	svc, deps := newTestService()

	entryAt := testNow.Add(-10 * time.Minute)
	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		// stored under the normalized key; raw input arrives with different
		// casing and spacing
		require.Equal(t, "BAB1234", plateKey)
		return pendingGuestAt(entryAt), nil
	}
	deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
		assert.Equal(t, testNow.Add(-30*time.Minute), since)
		return entryEventAt(entryAt), nil
	}
	var updatedGuest *parking.Guest
	deps.guests.UpdateStatusFunc = func(ctx context.Context, g *parking.Guest, from parking.GuestStatus) (bool, error) {
		assert.Equal(t, parking.GuestStatusPending, from)
		updatedGuest = g
		return true, nil
	}
	var captured *parking.ParkingSession
	deps.sessions.CreateActiveFunc = func(ctx context.Context, s *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
		s.ID = 20
		captured = s
		return true, s, nil
	}

	result, err := svc.ConfirmPlate(context.Background(), "b ab1234", "token", "1.2.3.4", testOrg)
	require.NoError(t, err)

	assert.Equal(t, "BAB1234", result.Plate)
	assert.Equal(t, int64(20), result.SessionID)
	assert.Equal(t, testNow.Add(24*time.Hour), result.ValidUntil)

	require.NotNil(t, updatedGuest)
	assert.Equal(t, parking.GuestStatusConfirmed, updatedGuest.Status)
	require.NotNil(t, updatedGuest.ConfirmedAt)
	assert.Equal(t, testNow, *updatedGuest.ConfirmedAt)

	require.NotNil(t, captured)
	assert.Equal(t, int64(100), captured.EntryEventID, "session must reference the original entry event")
	assert.Equal(t, entryAt, captured.EntryTime)
	assert.Nil(t, captured.CustomerID)
}

func TestConfirmConcurrentTransitionLost(t *testing.T) {
	svc, deps := newTestService()

	calls := 0
	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		calls++
		if calls == 1 {
			return pendingGuestAt(testNow.Add(-5 * time.Minute)), nil
		}
		// re-read after the lost update sees the other caller's confirmation
		return &parking.Guest{ID: 10, Status: parking.GuestStatusConfirmed, ExpiresAt: testNow.Add(24 * time.Hour)}, nil
	}
	deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
		return entryEventAt(testNow.Add(-5 * time.Minute)), nil
	}
	deps.guests.UpdateStatusFunc = func(ctx context.Context, g *parking.Guest, from parking.GuestStatus) (bool, error) {
		return false, nil
	}
	deps.sessions.FindActiveByPlateFunc = func(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error) {
		return []*parking.ParkingSession{{ID: 44, Status: parking.SessionStatusActive}}, nil
	}
	sessionCreates := 0
	deps.sessions.CreateActiveFunc = func(ctx context.Context, s *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
		sessionCreates++
		return true, s, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeAlreadyConfirmed, confirmErr(t, err).Code)
	assert.Zero(t, sessionCreates, "the losing confirmation must not create a second session")
}

func TestConfirmRetryRestoresMissingSession(t *testing.T) {
	svc, deps := newTestService()

	// a previous attempt persisted the confirm transition but failed to
	// create the session; this retry must repair it
	entryAt := testNow.Add(-10 * time.Minute)
	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return &parking.Guest{
			ID:        10,
			PlateKey:  "BAB1234",
			Status:    parking.GuestStatusConfirmed,
			ExpiresAt: testNow.Add(23 * time.Hour),
			CreatedAt: entryAt,
		}, nil
	}
	deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
		return entryEventAt(entryAt), nil
	}
	var captured *parking.ParkingSession
	deps.sessions.CreateActiveFunc = func(ctx context.Context, s *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
		s.ID = 20
		captured = s
		return true, s, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeAlreadyConfirmed, confirmErr(t, err).Code)

	require.NotNil(t, captured, "the retry must restore the missing session")
	assert.Equal(t, int64(100), captured.EntryEventID)
	assert.Equal(t, entryAt, captured.EntryTime)
}

func TestConfirmAlreadyConfirmedLeavesExistingSessionAlone(t *testing.T) {
	svc, deps := newTestService()

	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return &parking.Guest{ID: 10, Status: parking.GuestStatusConfirmed, ExpiresAt: testNow.Add(20 * time.Hour)}, nil
	}
	deps.sessions.FindActiveByPlateFunc = func(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error) {
		return []*parking.ParkingSession{{ID: 20, Status: parking.SessionStatusActive}}, nil
	}
	sessionCreates := 0
	deps.sessions.CreateActiveFunc = func(ctx context.Context, s *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
		sessionCreates++
		return true, s, nil
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.Equal(t, parking.CodeAlreadyConfirmed, confirmErr(t, err).Code)
	assert.Zero(t, sessionCreates)
}

func TestConfirmSessionRaceReusesWinner(t *testing.T) {
	svc, deps := newTestService()

	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return pendingGuestAt(testNow.Add(-5 * time.Minute)), nil
	}
	deps.events.FindLatestEntryEventFunc = func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
		return entryEventAt(testNow.Add(-5 * time.Minute)), nil
	}
	winner := &parking.ParkingSession{ID: 44, Status: parking.SessionStatusActive}
	deps.sessions.CreateActiveFunc = func(ctx context.Context, s *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
		return false, winner, nil
	}

	result, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	require.NoError(t, err)
	assert.Equal(t, int64(44), result.SessionID)
}

func TestConfirmStorageFailureSurfacesAsUnavailable(t *testing.T) {
	svc, deps := newTestService()

	deps.guests.FindCurrentGuestFunc = func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
		return nil, errors.New("connection refused")
	}

	_, err := svc.ConfirmPlate(context.Background(), "B-AB 1234", "token", "1.2.3.4", testOrg)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
