package parking

import (
	"errors"
	"time"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusPenalized SessionStatus = "penalized"
)

var ErrSessionNotActive = errors.New("parking session is not active")

// ParkingSession is one continuous stay. Guest sessions carry no customer or
// car reference; the link to the Guest record is derived by (org, plate key)
// at query time, not stored.
type ParkingSession struct {
	ID            int64
	OrgID         int64
	PlateKey      string
	CustomerID    *int64
	CarID         *int64
	ParkingLotID  *int64
	EntryEventID  int64
	ExitEventID   *int64
	EntryTime     time.Time
	ExitTime      *time.Time
	Status        SessionStatus
	PenaltyAmount float64
	CreatedAt     time.Time
}

// Terminal reports whether the session reached a final status. Terminal
// sessions are never mutated again.
func (s *ParkingSession) Terminal() bool {
	return s.Status != SessionStatusActive
}

// Close records the matching exit event and completes the session. Only an
// active session can be closed.
func (s *ParkingSession) Close(exitEventID int64, exitTime time.Time) error {
	if s.Terminal() {
		return ErrSessionNotActive
	}
	s.ExitEventID = &exitEventID
	s.ExitTime = &exitTime
	s.Status = SessionStatusCompleted
	return nil
}
