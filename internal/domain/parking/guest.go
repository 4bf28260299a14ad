package parking

import (
	"errors"
	"time"
)

type GuestStatus string

const (
	GuestStatusPending   GuestStatus = "pending_confirmation"
	GuestStatusConfirmed GuestStatus = "confirmed"
	GuestStatusExpired   GuestStatus = "expired"
)

var (
	ErrGuestAlreadyConfirmed = errors.New("guest already confirmed")
	ErrGuestWindowExpired    = errors.New("guest confirmation window expired")
)

// Guest is an unconfirmed or confirmed guest vehicle. While pending,
// ExpiresAt is the self-confirmation deadline; once confirmed it is the end
// of the granted parking validity. Expiry is evaluated lazily against an
// injected clock, so a lapsed record is never observed as active even before
// a sweep persists the terminal status.
type Guest struct {
	ID          int64
	OrgID       int64
	PlateKey    string
	RawPlate    string
	Status      GuestStatus
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CreatedAt   time.Time
}

// NewPendingGuest starts the confirmation state machine for a plate first
// seen by an entry camera.
func NewPendingGuest(orgID int64, plateKey, rawPlate string, now time.Time, pendingWindow time.Duration) *Guest {
	return &Guest{
		OrgID:     orgID,
		PlateKey:  plateKey,
		RawPlate:  rawPlate,
		Status:    GuestStatusPending,
		ExpiresAt: now.Add(pendingWindow),
		CreatedAt: now,
	}
}

// ExpiredBy reports whether the guest must be treated as expired at now,
// regardless of the persisted status.
func (g *Guest) ExpiredBy(now time.Time) bool {
	return g.Status == GuestStatusExpired || !now.Before(g.ExpiresAt)
}

// ActiveBy reports whether the record is still live in its current state:
// a pending guest inside the confirmation deadline or a confirmed guest
// inside the parking validity.
func (g *Guest) ActiveBy(now time.Time) bool {
	return !g.ExpiredBy(now)
}

// Confirm moves a pending guest to confirmed. ConfirmedAt is set to now and
// ExpiresAt is replaced (not extended) by now + fullDuration, since the
// window changes meaning from confirmation deadline to parking validity.
func (g *Guest) Confirm(now time.Time, fullDuration time.Duration) error {
	if g.Status == GuestStatusConfirmed {
		if g.ExpiredBy(now) {
			return ErrGuestWindowExpired
		}
		return ErrGuestAlreadyConfirmed
	}
	if g.ExpiredBy(now) {
		return ErrGuestWindowExpired
	}
	confirmedAt := now
	g.Status = GuestStatusConfirmed
	g.ConfirmedAt = &confirmedAt
	g.ExpiresAt = now.Add(fullDuration)
	return nil
}

// Expire marks the record terminally expired. No transitions lead out of it.
func (g *Guest) Expire() {
	g.Status = GuestStatusExpired
}
