package devicefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MilkywayRides/AuthE/internal/domain"
	"github.com/MilkywayRides/AuthE/internal/logger"
	"github.com/MilkywayRides/AuthE/internal/metrics"
	"github.com/google/uuid"
)

type EventType string

const (
	EventInitial EventType = "initial"
	EventUpdate  EventType = "update"
	EventError   EventType = "error"
)

const readErrorMessage = "Failed to fetch devices"

// Event is one frame of the feed. Snapshots always carry a devices array, error
// frames carry only a message.
type Event struct {
	Type    EventType              `json:"type"`
	Devices []domain.DeviceSummary `json:"devices"`
	Message string                 `json:"message,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventError {
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}

	devices := e.Devices
	if devices == nil {
		devices = []domain.DeviceSummary{}
	}
	return json.Marshal(struct {
		Type    EventType              `json:"type"`
		Devices []domain.DeviceSummary `json:"devices"`
	}{e.Type, devices})
}

type DeviceLister interface {
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Device, error)
}

// Feed polls the device registry for each subscriber independently. Subscribers
// share nothing; each owns its ticker and stops when its context ends.
type Feed struct {
	devices  DeviceLister
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(devices DeviceLister, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Feed {
	return &Feed{
		devices:  devices,
		interval: interval,
		logger:   log,
		metrics:  m,
	}
}

// Subscribe emits an initial snapshot immediately and an update every interval
// until ctx is cancelled. The returned channel is closed once polling stopped.
func (f *Feed) Subscribe(ctx context.Context, userID uuid.UUID) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		f.metrics.FeedSubscribed()
		defer f.metrics.FeedUnsubscribed()

		if !f.emit(ctx, events, f.snapshot(ctx, userID, EventInitial)) {
			return
		}

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !f.emit(ctx, events, f.snapshot(ctx, userID, EventUpdate)) {
					return
				}
			}
		}
	}()

	return events
}

func (f *Feed) snapshot(ctx context.Context, userID uuid.UUID, typ EventType) Event {
	devices, err := f.devices.List(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			f.metrics.FeedReadError()
			f.logger.ErrorContext(ctx, "device feed read failed",
				logger.Op("devicefeed.snapshot"),
				logger.Err(err),
			)
		}
		return Event{Type: EventError, Message: readErrorMessage}
	}
	return Event{Type: typ, Devices: domain.Summaries(devices)}
}

func (f *Feed) emit(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
