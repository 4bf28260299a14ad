package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"parking-alpr-service/internal/domain/parking"
	"parking-alpr-service/internal/notify"
	"parking-alpr-service/internal/repository"
	"parking-alpr-service/internal/verify"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// EventStore persists camera detections and answers entry-event lookups.
type EventStore interface {
	GetOrCreatePlate(ctx context.Context, normalized, original string) (int64, error)
	CreateCameraEvent(ctx context.Context, event *parking.CameraEvent) (created bool, err error)
	FindLatestEntryEvent(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error)
	FindEvents(ctx context.Context, orgID int64, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]repository.CameraEventRecord, error)
	DeleteOldEvents(ctx context.Context, days int) (int64, error)
}

// GuestStore owns guest records; all mutations go through state-machine
// shaped operations, never ad-hoc field writes.
type GuestStore interface {
	FindCurrentGuest(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error)
	CreatePending(ctx context.Context, guest *parking.Guest) (created bool, current *parking.Guest, err error)
	UpdateStatus(ctx context.Context, guest *parking.Guest, fromStatus parking.GuestStatus) (updated bool, err error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ListGuests(ctx context.Context, orgID int64, status *string, limit, offset int) ([]repository.GuestRecord, error)
}

type SessionStore interface {
	FindActiveByPlate(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error)
	CreateActive(ctx context.Context, session *parking.ParkingSession) (created bool, current *parking.ParkingSession, err error)
	Close(ctx context.Context, sessionID, exitEventID int64, exitTime time.Time) (closed bool, err error)
	CloseDuplicate(ctx context.Context, sessionID int64, at time.Time) error
	ListSessions(ctx context.Context, orgID int64, status *string, plateKey *string, limit, offset int) ([]repository.SessionRecord, error)
}

type CustomerStore interface {
	FindRegisteredVehicle(ctx context.Context, orgID int64, plateKey string) (*parking.RegisteredVehicle, error)
}

// Windows holds the two time windows driving the guest state machine.
type Windows struct {
	PendingWindow       time.Duration
	FullParkingDuration time.Duration
}

type ParkingService struct {
	events    EventStore
	guests    GuestStore
	sessions  SessionStore
	customers CustomerStore
	notifier  notify.Notifier
	verifier  verify.Verifier
	clock     Clock
	windows   Windows
	log       zerolog.Logger
}

func NewParkingService(
	events EventStore,
	guests GuestStore,
	sessions SessionStore,
	customers CustomerStore,
	notifier notify.Notifier,
	verifier verify.Verifier,
	clock Clock,
	windows Windows,
	log zerolog.Logger,
) *ParkingService {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &ParkingService{
		events:    events,
		guests:    guests,
		sessions:  sessions,
		customers: customers,
		notifier:  notifier,
		verifier:  verifier,
		clock:     clock,
		windows:   windows,
		log:       log,
	}
}
