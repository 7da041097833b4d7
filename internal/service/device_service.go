package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/event"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	unknownUserAgent = "Unknown Browser"
	unknownIP        = "Unknown IP"
)

// ClientInfo is the request-derived metadata recorded at sign-in.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

func (c ClientInfo) normalized() ClientInfo {
	if c.UserAgent == "" {
		c.UserAgent = unknownUserAgent
	}
	if c.IPAddress == "" {
		c.IPAddress = unknownIP
	}
	return c
}

type DeviceService struct {
	devices   repository.DeviceRepository
	users     repository.UserRepository
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewDeviceService(devices repository.DeviceRepository, users repository.UserRepository, publisher event.Publisher, log *slog.Logger) *DeviceService {
	return &DeviceService{
		devices:   devices,
		users:     users,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// RecordSignIn upserts the (user, user-agent) device and the user's last IP.
func (s *DeviceService) RecordSignIn(ctx context.Context, userID uuid.UUID, client ClientInfo) (*domain.Device, error) {
	client = client.normalized()

	device, err := s.devices.Upsert(ctx, userID, client.UserAgent, client.IPAddress, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	if err := s.users.UpdateLastIP(ctx, userID, client.IPAddress); err != nil {
		return device, fmt.Errorf("update last ip: %w", err)
	}

	s.publish(ctx, event.New(event.DeviceSignedIn, userID, map[string]string{
		"deviceId": device.ID.String(),
	}))
	return device, nil
}

// List returns the user's devices, most recent sign-in first.
func (s *DeviceService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error) {
	return s.devices.ListByUserID(ctx, userID)
}

// Delete removes a device owned by userID. Devices of other users are reported
// as ErrDeviceNotFound.
func (s *DeviceService) Delete(ctx context.Context, userID, deviceID uuid.UUID) (*domain.Device, error) {
	device, err := s.devices.DeleteForUser(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	s.publish(ctx, event.New(event.DeviceRevoked, userID, map[string]string{
		"deviceId": device.ID.String(),
	}))
	return device, nil
}

func (s *DeviceService) IsActive(ctx context.Context, userID, deviceID uuid.UUID) (bool, error) {
	return s.devices.ExistsForUser(ctx, userID, deviceID)
}

func (s *DeviceService) publish(ctx context.Context, e event.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "audit event not published",
			logger.Op("devices.publish"),
			slog.String("event_type", e.Type),
			logger.Err(err),
		)
	}
}
