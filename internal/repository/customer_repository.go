package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parking-alpr-service/internal/domain/parking"
)

// CustomerRepository is read-only: customer and car records are owned by the
// customer-management subsystem, this service only classifies against them.
type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

type CustomerRecord struct {
	ID                int64  `gorm:"primaryKey"`
	OrgID             int64  `gorm:"not null"`
	Name              string `gorm:"not null"`
	Email             string `gorm:"not null"`
	AccountRegistered bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
}

func (CustomerRecord) TableName() string { return "customers" }

type CarRecord struct {
	ID         int64  `gorm:"primaryKey"`
	OrgID      int64  `gorm:"not null"`
	CustomerID int64  `gorm:"not null"`
	PlateKey   string `gorm:"not null"`
	RawPlate   string `gorm:"not null"`
	CreatedAt  time.Time
}

func (CarRecord) TableName() string { return "cars" }

// FindRegisteredVehicle returns the registered car and its owner for the
// plate, or nil when the plate belongs to no customer.
func (r *CustomerRepository) FindRegisteredVehicle(ctx context.Context, orgID int64, plateKey string) (*parking.RegisteredVehicle, error) {
	var car CarRecord
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND plate_key = ?", orgID, plateKey).
		First(&car).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var customer CustomerRecord
	if err := r.db.WithContext(ctx).Where("id = ?", car.CustomerID).First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &parking.RegisteredVehicle{
		Car: parking.Car{
			ID:         car.ID,
			OrgID:      car.OrgID,
			CustomerID: car.CustomerID,
			PlateKey:   car.PlateKey,
			RawPlate:   car.RawPlate,
		},
		Customer: parking.Customer{
			ID:                customer.ID,
			OrgID:             customer.OrgID,
			Name:              customer.Name,
			Email:             customer.Email,
			AccountRegistered: customer.AccountRegistered,
		},
	}, nil
}
