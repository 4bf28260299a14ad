package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-alpr-service/internal/domain/parking"
)

type GuestRepository struct {
	db *gorm.DB
}

func NewGuestRepository(db *gorm.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

type GuestRecord struct {
	ID          int64  `gorm:"primaryKey"`
	OrgID       int64  `gorm:"not null"`
	PlateKey    string `gorm:"not null"`
	RawPlate    string `gorm:"not null"`
	Status      string `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null"`
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GuestRecord) TableName() string { return "guests" }

func guestFromRecord(rec *GuestRecord) *parking.Guest {
	return &parking.Guest{
		ID:          rec.ID,
		OrgID:       rec.OrgID,
		PlateKey:    rec.PlateKey,
		RawPlate:    rec.RawPlate,
		Status:      parking.GuestStatus(rec.Status),
		ExpiresAt:   rec.ExpiresAt,
		ConfirmedAt: rec.ConfirmedAt,
		CreatedAt:   rec.CreatedAt,
	}
}

// FindCurrentGuest returns the single non-expired guest record for the plate,
// or nil. The partial unique index on (org_id, plate_key) guarantees at most
// one such row; window expiry is evaluated by the caller against its clock.
func (r *GuestRepository) FindCurrentGuest(ctx context.Context, orgID int64, plateKey string) (*parking.Guest, error) {
	var rec GuestRecord
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND plate_key = ? AND status <> ?", orgID, plateKey, parking.GuestStatusExpired).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return guestFromRecord(&rec), nil
}

// CreatePending inserts a new pending guest unless a non-expired guest for
// the plate already exists. Returns the winning row either way; created
// reports whether this call inserted it.
func (r *GuestRepository) CreatePending(ctx context.Context, guest *parking.Guest) (created bool, current *parking.Guest, err error) {
	rec := GuestRecord{
		OrgID:     guest.OrgID,
		PlateKey:  guest.PlateKey,
		RawPlate:  guest.RawPlate,
		Status:    string(guest.Status),
		ExpiresAt: guest.ExpiresAt,
		CreatedAt: guest.CreatedAt,
		UpdatedAt: guest.CreatedAt,
	}

	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "plate_key"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Name: "status"}, Value: string(parking.GuestStatusExpired)},
			}},
			DoNothing: true,
		}).
		Create(&rec)
	if tx.Error != nil {
		return false, nil, tx.Error
	}
	if tx.RowsAffected > 0 {
		guest.ID = rec.ID
		return true, guest, nil
	}

	existing, err := r.FindCurrentGuest(ctx, guest.OrgID, guest.PlateKey)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// UpdateStatus persists a state-machine transition. The previous status is
// part of the predicate so a concurrent transition loses cleanly instead of
// overwriting.
func (r *GuestRepository) UpdateStatus(ctx context.Context, guest *parking.Guest, fromStatus parking.GuestStatus) (updated bool, err error) {
	tx := r.db.WithContext(ctx).
		Model(&GuestRecord{}).
		Where("id = ? AND status = ?", guest.ID, fromStatus).
		Updates(map[string]interface{}{
			"status":       string(guest.Status),
			"expires_at":   guest.ExpiresAt,
			"confirmed_at": guest.ConfirmedAt,
			"updated_at":   time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// SweepExpired persists the terminal status for lapsed records. Optional
// housekeeping: readers already treat lapsed rows as expired.
func (r *GuestRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&GuestRecord{}).
		Where("status <> ? AND expires_at <= ?", parking.GuestStatusExpired, now).
		Updates(map[string]interface{}{
			"status":     string(parking.GuestStatusExpired),
			"updated_at": now,
		})
	return tx.RowsAffected, tx.Error
}

func (r *GuestRepository) ListGuests(ctx context.Context, orgID int64, status *string, limit, offset int) ([]GuestRecord, error) {
	query := r.db.WithContext(ctx).Model(&GuestRecord{}).Where("org_id = ?", orgID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var guests []GuestRecord
	err := query.Find(&guests).Error
	return guests, err
}
