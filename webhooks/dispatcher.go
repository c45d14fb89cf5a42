package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-iap/transport"
	glog "github.com/goliatone/go-logger/glog"
)

// DispatchStats counts what one claim cycle did with the records it leased.
type DispatchStats struct {
	Claimed      int
	Delivered    int
	Retried      int
	DeadLettered int
}

type DispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	ClaimLease     time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	SecretHeader   string
}

func DefaultDispatcherConfig() DispatcherConfig {
	delivery := core.DefaultConfig().Delivery
	return DispatcherConfig{
		BatchSize:      delivery.BatchSize,
		MaxAttempts:    delivery.MaxAttempts,
		ClaimLease:     delivery.ClaimLease,
		PollInterval:   delivery.PollInterval,
		RequestTimeout: delivery.RequestTimeout,
		SecretHeader:   delivery.SecretHeader,
	}
}

// DispatcherConfigFromDelivery lifts service-level delivery settings into
// dispatcher config. Zero fields fall back to defaults at use time.
func DispatcherConfigFromDelivery(delivery core.DeliveryConfig) DispatcherConfig {
	return DispatcherConfig{
		BatchSize:      delivery.BatchSize,
		MaxAttempts:    delivery.MaxAttempts,
		ClaimLease:     delivery.ClaimLease,
		PollInterval:   delivery.PollInterval,
		RequestTimeout: delivery.RequestTimeout,
		SecretHeader:   delivery.SecretHeader,
	}
}

// Dispatcher drains the delivery queue: it claims due records under a lease,
// POSTs each stored payload to its endpoint, and records the outcome so that
// every delivery is attempted at least once and dead-lettered records stay
// inspectable.
type Dispatcher struct {
	Store       core.DeliveryStore
	Transport   core.TransportAdapter
	RetryPolicy RetryPolicy
	Logger      core.Logger
	Config      DispatcherConfig
	Now         func() time.Time
}

func NewDispatcher(store core.DeliveryStore, adapter core.TransportAdapter) *Dispatcher {
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Dispatcher{
		Store:       store,
		Transport:   adapter,
		RetryPolicy: DefaultRetryPolicy(),
		Config:      DefaultDispatcherConfig(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RunCycle claims one batch of due deliveries and attempts each of them.
// Endpoint failures are recorded on the delivery row, not returned; the
// returned error aggregates store failures only.
func (d *Dispatcher) RunCycle(ctx context.Context) (DispatchStats, error) {
	if d == nil || d.Store == nil {
		return DispatchStats{}, fmt.Errorf("webhooks: dispatcher requires a delivery store")
	}
	if d.Transport == nil {
		return DispatchStats{}, fmt.Errorf("webhooks: dispatcher requires a transport adapter")
	}

	claimed, err := d.Store.ClaimDue(ctx, d.now(), d.batchSize(), d.claimLease())
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(claimed)}
	var cycleErr error
	for _, delivery := range claimed {
		deliveryID := strings.TrimSpace(delivery.Delivery.ID)
		attempts := delivery.Delivery.Attempts + 1

		sendErr := d.send(ctx, delivery)
		attemptedAt := d.now()
		if sendErr == nil {
			if err := d.Store.MarkDelivered(ctx, deliveryID, attempts, attemptedAt); err != nil {
				cycleErr = joinErrors(cycleErr, err)
				continue
			}
			stats.Delivered++
			continue
		}

		cause := sendErr.Error()
		if attempts >= d.maxAttempts() {
			if err := d.Store.MarkDeadLetter(ctx, deliveryID, attempts, cause, attemptedAt); err != nil {
				cycleErr = joinErrors(cycleErr, err)
				continue
			}
			stats.DeadLettered++
			d.logger(ctx).Error("webhook delivery dead lettered",
				"delivery_id", deliveryID,
				"endpoint_id", delivery.Delivery.EndpointID,
				"attempts", attempts,
				"error", cause,
			)
			continue
		}

		nextRetryAt := attemptedAt.Add(d.retryPolicy().NextDelay(attempts))
		if err := d.Store.MarkFailed(ctx, deliveryID, attempts, cause, nextRetryAt, attemptedAt); err != nil {
			cycleErr = joinErrors(cycleErr, err)
			continue
		}
		stats.Retried++
		d.logger(ctx).Warn("webhook delivery attempt failed",
			"delivery_id", deliveryID,
			"endpoint_id", delivery.Delivery.EndpointID,
			"attempts", attempts,
			"next_retry_at", nextRetryAt.Format(time.RFC3339),
			"error", cause,
		)
	}

	return stats, cycleErr
}

// Run drives claim cycles until ctx is cancelled, pausing PollInterval
// between cycles regardless of outcome. Cycle errors are logged, never fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil || d.Store == nil {
		return fmt.Errorf("webhooks: dispatcher requires a delivery store")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if _, err := d.RunCycle(ctx); err != nil {
			d.logger(ctx).Error("webhook dispatch cycle failed", "error", err.Error())
		}
		if err := waitWithContext(ctx, d.pollInterval()); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) retryPolicy() RetryPolicy {
	if d != nil && d.RetryPolicy != nil {
		return d.RetryPolicy
	}
	return DefaultRetryPolicy()
}

func (d *Dispatcher) logger(ctx context.Context) core.Logger {
	var logger core.Logger
	if d != nil {
		logger = d.Logger
	}
	logger = glog.Ensure(logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	return logger
}

func (d *Dispatcher) batchSize() int {
	if d != nil && d.Config.BatchSize > 0 {
		return d.Config.BatchSize
	}
	return DefaultDispatcherConfig().BatchSize
}

func (d *Dispatcher) maxAttempts() int {
	if d != nil && d.Config.MaxAttempts > 0 {
		return d.Config.MaxAttempts
	}
	return DefaultDispatcherConfig().MaxAttempts
}

func (d *Dispatcher) claimLease() time.Duration {
	if d != nil && d.Config.ClaimLease > 0 {
		return d.Config.ClaimLease
	}
	return DefaultDispatcherConfig().ClaimLease
}

func (d *Dispatcher) pollInterval() time.Duration {
	if d != nil && d.Config.PollInterval > 0 {
		return d.Config.PollInterval
	}
	return DefaultDispatcherConfig().PollInterval
}

func (d *Dispatcher) requestTimeout() time.Duration {
	if d != nil && d.Config.RequestTimeout > 0 {
		return d.Config.RequestTimeout
	}
	return DefaultDispatcherConfig().RequestTimeout
}

func (d *Dispatcher) secretHeader() string {
	if d != nil {
		if header := strings.TrimSpace(d.Config.SecretHeader); header != "" {
			return header
		}
	}
	return DefaultDispatcherConfig().SecretHeader
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
