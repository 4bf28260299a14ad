package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-alpr-service/internal/domain/parking"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type SessionRecord struct {
	ID            int64  `gorm:"primaryKey"`
	OrgID         int64  `gorm:"not null"`
	PlateKey      string `gorm:"not null"`
	CustomerID    *int64
	CarID         *int64
	ParkingLotID  *int64
	EntryEventID  int64 `gorm:"not null"`
	ExitEventID   *int64
	EntryTime     time.Time `gorm:"not null"`
	ExitTime      *time.Time
	Status        string  `gorm:"not null"`
	PenaltyAmount float64 `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (SessionRecord) TableName() string { return "parking_sessions" }

func sessionFromRecord(rec *SessionRecord) *parking.ParkingSession {
	return &parking.ParkingSession{
		ID:            rec.ID,
		OrgID:         rec.OrgID,
		PlateKey:      rec.PlateKey,
		CustomerID:    rec.CustomerID,
		CarID:         rec.CarID,
		ParkingLotID:  rec.ParkingLotID,
		EntryEventID:  rec.EntryEventID,
		ExitEventID:   rec.ExitEventID,
		EntryTime:     rec.EntryTime,
		ExitTime:      rec.ExitTime,
		Status:        parking.SessionStatus(rec.Status),
		PenaltyAmount: rec.PenaltyAmount,
		CreatedAt:     rec.CreatedAt,
	}
}

// FindActiveByPlate returns every active session for the plate, earliest
// first. The partial unique index keeps this at one row; more than one is an
// invariant violation the reconciler resolves in favor of the earliest.
func (r *SessionRepository) FindActiveByPlate(ctx context.Context, orgID int64, plateKey string) ([]*parking.ParkingSession, error) {
	var recs []SessionRecord
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND plate_key = ? AND status = ?", orgID, plateKey, parking.SessionStatusActive).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	sessions := make([]*parking.ParkingSession, 0, len(recs))
	for i := range recs {
		sessions = append(sessions, sessionFromRecord(&recs[i]))
	}
	return sessions, nil
}

// CreateActive inserts a new active session unless one already exists for the
// plate. The loser of a concurrent create gets created=false plus the row
// that won, and takes the update path instead.
func (r *SessionRepository) CreateActive(ctx context.Context, session *parking.ParkingSession) (created bool, current *parking.ParkingSession, err error) {
	now := time.Now()
	rec := SessionRecord{
		OrgID:         session.OrgID,
		PlateKey:      session.PlateKey,
		CustomerID:    session.CustomerID,
		CarID:         session.CarID,
		ParkingLotID:  session.ParkingLotID,
		EntryEventID:  session.EntryEventID,
		EntryTime:     session.EntryTime,
		Status:        string(parking.SessionStatusActive),
		PenaltyAmount: session.PenaltyAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "plate_key"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Name: "status"}, Value: string(parking.SessionStatusActive)},
			}},
			DoNothing: true,
		}).
		Create(&rec)
	if tx.Error != nil {
		return false, nil, tx.Error
	}
	if tx.RowsAffected > 0 {
		session.ID = rec.ID
		session.Status = parking.SessionStatusActive
		session.CreatedAt = now
		return true, session, nil
	}

	existing, err := r.FindActiveByPlate(ctx, session.OrgID, session.PlateKey)
	if err != nil {
		return false, nil, err
	}
	if len(existing) == 0 {
		// the winner was closed between our insert and this read; report the
		// session as already gone rather than retrying inside the engine
		return false, nil, nil
	}
	return false, existing[0], nil
}

// Close completes an active session with its matching exit event. The status
// guard makes closing idempotent under concurrent exits.
func (r *SessionRepository) Close(ctx context.Context, sessionID, exitEventID int64, exitTime time.Time) (closed bool, err error) {
	tx := r.db.WithContext(ctx).
		Model(&SessionRecord{}).
		Where("id = ? AND status = ?", sessionID, parking.SessionStatusActive).
		Updates(map[string]interface{}{
			"exit_event_id": exitEventID,
			"exit_time":     exitTime,
			"status":        string(parking.SessionStatusCompleted),
			"updated_at":    time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CloseDuplicate retires a session that lost invariant resolution. No exit
// event exists for it; only the timestamp is recorded.
func (r *SessionRepository) CloseDuplicate(ctx context.Context, sessionID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&SessionRecord{}).
		Where("id = ? AND status = ?", sessionID, parking.SessionStatusActive).
		Updates(map[string]interface{}{
			"exit_time":  at,
			"status":     string(parking.SessionStatusCompleted),
			"updated_at": at,
		}).Error
}

func (r *SessionRepository) ListSessions(ctx context.Context, orgID int64, status *string, plateKey *string, limit, offset int) ([]SessionRecord, error) {
	query := r.db.WithContext(ctx).Model(&SessionRecord{}).Where("org_id = ?", orgID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if plateKey != nil {
		query = query.Where("plate_key = ?", *plateKey)
	}
	query = query.Order("entry_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var sessions []SessionRecord
	err := query.Find(&sessions).Error
	return sessions, err
}
