package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "mailer",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// BreakerMailer stops calling a failing mail server for a while instead of
// making every registration wait on a dead connection.
type BreakerMailer struct {
	next    Mailer
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerMailer(next Mailer, cfg BreakerConfig, logger *slog.Logger) *BreakerMailer {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerMailer{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (m *BreakerMailer) Send(ctx context.Context, to, subject, html string) error {
	_, err := m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.next.Send(ctx, to, subject, html)
	})
	return err
}

func (m *BreakerMailer) State() gobreaker.State {
	return m.breaker.State()
}
