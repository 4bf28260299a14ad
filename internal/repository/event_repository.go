package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-alpr-service/internal/domain/parking"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

type Plate struct {
	ID         int64  `gorm:"primaryKey"`
	Number     string `gorm:"not null"`
	Normalized string `gorm:"not null;uniqueIndex"`
	Country    *string
	Region     *string
	CreatedAt  time.Time
}

type CameraEventRecord struct {
	ID              int64 `gorm:"primaryKey"`
	OrgID           int64 `gorm:"not null"`
	PlateID         *int64
	ExternalID      *string `gorm:"uniqueIndex"`
	CameraID        string  `gorm:"not null"`
	CameraModel     *string
	Direction       *string
	Lane            *int
	RawPlate        string `gorm:"not null"`
	NormalizedPlate string `gorm:"not null"`
	Confidence      *float64
	VehicleColor    *string
	VehicleType     *string
	SnapshotURL     *string
	EventTime       time.Time `gorm:"not null"`
	RawPayload      datatypes.JSONMap
	CreatedAt       time.Time
}

func (CameraEventRecord) TableName() string { return "camera_events" }

func (r *EventRepository) GetOrCreatePlate(ctx context.Context, normalized, original string) (int64, error) {
	var plate Plate
	err := r.db.WithContext(ctx).Where("normalized = ?", normalized).First(&plate).Error
	if err == nil {
		return plate.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, err
	}

	plate = Plate{
		Number:     original,
		Normalized: normalized,
		CreatedAt:  time.Now(),
	}
	// two events for a brand-new plate may race; the unique index decides
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized"}},
			DoNothing: true,
		}).
		Create(&plate).Error
	if err != nil {
		return 0, err
	}
	if plate.ID != 0 {
		return plate.ID, nil
	}
	if err := r.db.WithContext(ctx).Where("normalized = ?", normalized).First(&plate).Error; err != nil {
		return 0, err
	}
	return plate.ID, nil
}

// CreateCameraEvent persists one detection. When the payload carries an
// external id that was already stored, nothing is inserted and the previously
// stored event is returned with created=false.
func (r *EventRepository) CreateCameraEvent(ctx context.Context, event *parking.CameraEvent) (created bool, err error) {
	dbEvent := CameraEventRecord{
		OrgID:           event.OrgID,
		PlateID:         &event.PlateID,
		CameraID:        event.CameraID,
		RawPlate:        event.Plate,
		NormalizedPlate: event.NormalizedPlate,
		EventTime:       event.EventTime,
		CreatedAt:       time.Now(),
	}

	if event.ExternalID != "" {
		dbEvent.ExternalID = &event.ExternalID
	}
	if event.CameraModel != "" {
		dbEvent.CameraModel = &event.CameraModel
	}
	if event.Direction != "" {
		dbEvent.Direction = &event.Direction
	}
	if event.Lane != 0 {
		dbEvent.Lane = &event.Lane
	}
	if event.Confidence != 0 {
		dbEvent.Confidence = &event.Confidence
	}
	if event.Vehicle.Color != "" {
		dbEvent.VehicleColor = &event.Vehicle.Color
	}
	if event.Vehicle.Type != "" {
		dbEvent.VehicleType = &event.Vehicle.Type
	}
	if event.SnapshotURL != "" {
		dbEvent.SnapshotURL = &event.SnapshotURL
	}
	if len(event.RawPayload) > 0 {
		dbEvent.RawPayload = datatypes.JSONMap(event.RawPayload)
	}

	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(&dbEvent)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		event.ID = dbEvent.ID
		return true, nil
	}

	var existing CameraEventRecord
	if err := r.db.WithContext(ctx).Where("external_id = ?", event.ExternalID).First(&existing).Error; err != nil {
		return false, err
	}
	event.ID = existing.ID
	if existing.PlateID != nil {
		event.PlateID = *existing.PlateID
	}
	return false, nil
}

// FindLatestEntryEvent returns the most recent entry detection for the plate
// at or after since, or nil when none exists in that window.
func (r *EventRepository) FindLatestEntryEvent(ctx context.Context, orgID int64, plateKey string, since time.Time) (*parking.CameraEvent, error) {
	var rec CameraEventRecord
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND normalized_plate = ? AND direction = ? AND event_time >= ?",
			orgID, plateKey, parking.DirectionEntry, since).
		Order("event_time DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event := &parking.CameraEvent{
		ID:              rec.ID,
		OrgID:           rec.OrgID,
		NormalizedPlate: rec.NormalizedPlate,
	}
	event.Plate = rec.RawPlate
	event.CameraID = rec.CameraID
	event.EventTime = rec.EventTime
	if rec.PlateID != nil {
		event.PlateID = *rec.PlateID
	}
	if rec.Direction != nil {
		event.Direction = *rec.Direction
	}
	return event, nil
}

func (r *EventRepository) FindEvents(ctx context.Context, orgID int64, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]CameraEventRecord, error) {
	query := r.db.WithContext(ctx).Model(&CameraEventRecord{}).Where("org_id = ?", orgID)

	if normalizedPlate != nil {
		query = query.Where("normalized_plate = ?", *normalizedPlate)
	}
	if from != nil {
		query = query.Where("event_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("event_time <= ?", *to)
	}

	query = query.Order("event_time DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var events []CameraEventRecord
	err := query.Find(&events).Error
	return events, err
}

func (r *EventRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	tx := r.db.WithContext(ctx).
		Where("event_time < ?", cutoff).
		Delete(&CameraEventRecord{})
	return tx.RowsAffected, tx.Error
}
