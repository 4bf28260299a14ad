package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"parking-alpr-service/internal/domain/parking"
	"parking-alpr-service/internal/notify"
	"parking-alpr-service/internal/repository"
)

// MockEventStore is a mock implementation of EventStore
type MockEventStore struct {
	GetOrCreatePlateFunc     func(ctx context.Context, normalized, original string) (int64, error)
	CreateCameraEventFunc    func(ctx context.Context, event *parking.CameraEvent) (bool, error)
	FindLatestEntryEventFunc func(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error)
	FindEventsFunc           func(ctx context.Context, orgID int64, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]repository.CameraEventRecord, error)
	DeleteOldEventsFunc      func(ctx context.Context, days int) (int64, error)
}

func (m *MockEventStore) GetOrCreatePlate(ctx context.Context, normalized, original string) (int64, error) {
	if m.GetOrCreatePlateFunc != nil {
		return m.GetOrCreatePlateFunc(ctx, normalized, original)
	}
	return 1, nil
}

func (m *MockEventStore) CreateCameraEvent(ctx context.Context, event *parking.CameraEvent) (bool, error) {
	if m.CreateCameraEventFunc != nil {
		return m.CreateCameraEventFunc(ctx, event)
	}
	event.ID = 100
	return true, nil
}

func (m *MockEventStore) FindLatestEntryEvent(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
	if m.FindLatestEntryEventFunc != nil {
		return m.FindLatestEntryEventFunc(ctx, orgID, plateKey, since)
	}
	return nil, nil
}

func (m *MockEventStore) FindEvents(ctx context.Context, orgID int64, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]repository.CameraEventRecord, error) {
	if m.FindEventsFunc != nil {
		return m.FindEventsFunc(ctx, orgID, normalizedPlate, from, to, limit, offset)
	}
	return []repository.CameraEventRecord{}, nil
}

func (m *MockEventStore) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	if m.DeleteOldEventsFunc != nil {
		return m.DeleteOldEventsFunc(ctx, days)
	}
	return 0, nil
}

// MockGuestStore is a mock implementation of GuestStore
type MockGuestStore struct {
	FindCurrentGuestFunc func(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error)
	CreatePendingFunc    func(ctx context.Context, guest *parking.Guest) (bool, *parking.Guest, error)
	UpdateStatusFunc     func(ctx context.Context, guest *parking.Guest, fromStatus parking.GuestStatus) (bool, error)
	SweepExpiredFunc     func(ctx context.Context, now time.Time) (int64, error)
	ListGuestsFunc       func(ctx context.Context, orgID int64, status *string, limit, offset int) ([]repository.GuestRecord, error)
}

func (m *MockGuestStore) FindCurrentGuest(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
	if m.FindCurrentGuestFunc != nil {
		return m.FindCurrentGuestFunc(ctx, orgID, plateKey)
	}
	return nil, nil
}

func (m *MockGuestStore) CreatePending(ctx context.Context, guest *parking.Guest) (bool, *parking.Guest, error) {
	if m.CreatePendingFunc != nil {
		return m.CreatePendingFunc(ctx, guest)
	}
	guest.ID = 10
	return true, guest, nil
}

func (m *MockGuestStore) UpdateStatus(ctx context.Context, guest *parking.Guest, fromStatus parking.GuestStatus) (bool, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, guest, fromStatus)
	}
	return true, nil
}

func (m *MockGuestStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.SweepExpiredFunc != nil {
		return m.SweepExpiredFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockGuestStore) ListGuests(ctx context.Context, orgID int64, status *string, limit, offset int) ([]repository.GuestRecord, error) {
	if m.ListGuestsFunc != nil {
		return m.ListGuestsFunc(ctx, orgID, status, limit, offset)
	}
	return []repository.GuestRecord{}, nil
}

// MockSessionStore is a mock implementation of SessionStore
type MockSessionStore struct {
	FindActiveByPlateFunc func(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error)
	CreateActiveFunc      func(ctx context.Context, session *parking.ParkingSession) (bool, *parking.ParkingSession, error)
	CloseFunc             func(ctx context.Context, sessionID, exitEventID int64, exitTime time.Time) (bool, error)
	CloseDuplicateFunc    func(ctx context.Context, sessionID int64, at time.Time) error
	ListSessionsFunc      func(ctx context.Context, orgID int64, status *string, plateKey *string, limit, offset int) ([]repository.SessionRecord, error)
}

func (m *MockSessionStore) FindActiveByPlate(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error) {
	if m.FindActiveByPlateFunc != nil {
		return m.FindActiveByPlateFunc(ctx, orgID, plateKey)
	}
	return nil, nil
}

func (m *MockSessionStore) CreateActive(ctx context.Context, session *parking.ParkingSession) (bool, *parking.ParkingSession, error) {
	if m.CreateActiveFunc != nil {
		return m.CreateActiveFunc(ctx, session)
	}
	session.ID = 20
	return true, session, nil
}

func (m *MockSessionStore) Close(ctx context.Context, sessionID, exitEventID int64, exitTime time.Time) (bool, error) {
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx, sessionID, exitEventID, exitTime)
	}
	return true, nil
}

func (m *MockSessionStore) CloseDuplicate(ctx context.Context, sessionID int64, at time.Time) error {
	if m.CloseDuplicateFunc != nil {
		return m.CloseDuplicateFunc(ctx, sessionID, at)
	}
	return nil
}

func (m *MockSessionStore) ListSessions(ctx context.Context, orgID int64, status *string, plateKey *string, limit, offset int) ([]repository.SessionRecord, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, orgID, status, plateKey, limit, offset)
	}
	return []repository.SessionRecord{}, nil
}

// MockCustomerStore is a mock implementation of CustomerStore
type MockCustomerStore struct {
	FindRegisteredVehicleFunc func(ctx context.Context, orgID int64, plateKey string) (*parking.RegisteredVehicle, error)
}

func (m *MockCustomerStore) FindRegisteredVehicle(ctx context.Context, orgID int64, plateKey string) (*parking.RegisteredVehicle, error) {
	if m.FindRegisteredVehicleFunc != nil {
		return m.FindRegisteredVehicleFunc(ctx, orgID, plateKey)
	}
	return nil, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeVerifier struct {
	ok  bool
	err error
}

func (v *fakeVerifier) Verify(ctx context.Context, token, clientIP string) (bool, error) {
	return v.ok, v.err
}

// channelNotifier hands dispatched messages to the test; SendRegistrationEmail
// runs in a goroutine, so tests receive with a timeout.
type channelNotifier struct {
	sent chan notify.RegistrationEmail
}

func newChannelNotifier() *channelNotifier {
	return &channelNotifier{sent: make(chan notify.RegistrationEmail, 4)}
}

func (n *channelNotifier) SendRegistrationEmail(ctx context.Context, msg notify.RegistrationEmail) error {
	n.sent <- msg
	return nil
}

type testDeps struct {
	events    *MockEventStore
	guests    *MockGuestStore
	sessions  *MockSessionStore
	customers *MockCustomerStore
	notifier  *channelNotifier
	verifier  *fakeVerifier
	clock     *fakeClock
}

func newTestService() (*ParkingService, *testDeps) {
	deps := &testDeps{
		events:    &MockEventStore{},
		guests:    &MockGuestStore{},
		sessions:  &MockSessionStore{},
		customers: &MockCustomerStore{},
		notifier:  newChannelNotifier(),
		verifier:  &fakeVerifier{ok: true},
		clock:     &fakeClock{now: testNow},
	}
	svc := NewParkingService(
		deps.events,
		deps.guests,
		deps.sessions,
		deps.customers,
		deps.notifier,
		deps.verifier,
		deps.clock,
		Windows{
			PendingWindow:       30 * time.Minute,
			FullParkingDuration: 24 * time.Hour,
		},
		zerolog.Nop(),
	)
	return svc, deps
}

var testNow = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
