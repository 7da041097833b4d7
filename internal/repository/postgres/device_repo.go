package postgres

import (
	"context"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *deviceRepository {
	return &deviceRepository{db: db}
}

// Upsert inserts the device or, on a (user_id, user_agent) conflict, moves the
// existing row forward. An older sign-in that lands late never rewinds
// last_login_at or the ip recorded with it.
func (r *deviceRepository) Upsert(ctx context.Context, userID uuid.UUID, userAgent, ip string, at time.Time) (*domain.Device, error) {
	at = at.UTC()
	device := &domain.Device{
		UserID:      userID,
		UserAgent:   userAgent,
		IPAddress:   ip,
		LastLoginAt: at,
		CreatedAt:   at,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "user_agent"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"ip_address":    gorm.Expr("CASE WHEN excluded.last_login_at >= devices.last_login_at THEN excluded.ip_address ELSE devices.ip_address END"),
			"last_login_at": gorm.Expr("CASE WHEN excluded.last_login_at > devices.last_login_at THEN excluded.last_login_at ELSE devices.last_login_at END"),
		}),
	}).Create(device).Error
	if err != nil {
		return nil, err
	}

	var stored domain.Device
	err = r.db.WithContext(ctx).
		First(&stored, "user_id = ? AND user_agent = ?", userID, userAgent).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *deviceRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error) {
	var devices []*domain.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_login_at DESC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *deviceRepository) ExistsForUser(ctx context.Context, userID, deviceID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ? AND user_id = ?", deviceID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteForUser deletes the device only if it belongs to userID. A device owned
// by someone else is indistinguishable from a missing one.
func (r *deviceRepository) DeleteForUser(ctx context.Context, userID, deviceID uuid.UUID) (*domain.Device, error) {
	var device domain.Device
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&device, "id = ? AND user_id = ?", deviceID, userID).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Device{}, "id = ? AND user_id = ?", deviceID, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}
