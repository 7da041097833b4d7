package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device is one (user, user-agent) pairing that has signed in. It is a session
// fingerprint, not a hardware identity.
type Device struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_devices_user_agent"`
	UserAgent   string    `json:"userAgent" gorm:"not null;uniqueIndex:idx_devices_user_agent"`
	IPAddress   string    `json:"ipAddress"`
	LastLoginAt time.Time `json:"lastLoginAt" gorm:"not null;index"`
	CreatedAt   time.Time `json:"createdAt"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DeviceSummary is the wire form of a device, with the user-agent derived fields
// clients render.
type DeviceSummary struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	IPAddress   string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent"`
	DeviceType  string    `json:"deviceType"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (d *Device) Summary() DeviceSummary {
	return DeviceSummary{
		ID:          d.ID,
		UserID:      d.UserID,
		IPAddress:   d.IPAddress,
		UserAgent:   d.UserAgent,
		DeviceType:  ClassifyDeviceType(d.UserAgent),
		Browser:     ClassifyBrowser(d.UserAgent),
		OS:          ClassifyOS(d.UserAgent),
		LastLoginAt: d.LastLoginAt,
		CreatedAt:   d.CreatedAt,
	}
}

// Summaries never returns nil so an empty list encodes as [].
func Summaries(devices []*Device) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Summary())
	}
	return out
}
