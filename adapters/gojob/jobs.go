package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-iap/webhooks"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDWebhookDispatch = "iap.webhooks.dispatch"
	JobIDCatalogSync     = "iap.catalog.sync"
)

// NewWebhookDispatchMessage builds the periodic delivery-cycle job. The
// idempotency key buckets enqueues by minute so overlapping schedulers
// collapse into one cycle per bucket.
func NewWebhookDispatchMessage(bucket time.Time) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDWebhookDispatch,
		IdempotencyKey: "webhook_dispatch:" + bucket.UTC().Format("2006-01-02T15:04"),
		DedupPolicy:    "drop",
	}
}

// NewCatalogSyncMessage builds a catalog-sync job for one app. Repeated
// enqueues for the same app merge while a sync is queued.
func NewCatalogSyncMessage(appID string) *core.JobExecutionMessage {
	appID = strings.TrimSpace(appID)
	return &core.JobExecutionMessage{
		JobID:          JobIDCatalogSync,
		Parameters:     map[string]any{"app_id": appID},
		IdempotencyKey: "catalog_sync:" + appID,
		DedupPolicy:    "merge",
	}
}

type DispatchRunner interface {
	RunCycle(ctx context.Context) (webhooks.DispatchStats, error)
}

type CatalogSyncer interface {
	SyncProducts(ctx context.Context, appID string) (core.CatalogSyncResult, error)
}

// Executor runs dequeued billing jobs. Successful jobs ack; failures nack
// with policy-bounded retries, so a job that keeps failing dead-letters once
// the policy's attempt ceiling is reached.
type Executor struct {
	Dispatch DispatchRunner
	Catalog  CatalogSyncer
	Policy   RetryPolicy
	Logger   core.Logger
}

func (e *Executor) Execute(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if e == nil {
		return fmt.Errorf("gojob: executor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, e.Policy.NormalizeAttempt(core.JobNackOptions{
			DeadLetter: true,
			Reason:     "missing execution message",
		}, attempt))
	}

	if err := e.run(ctx, msg); err != nil {
		glog.Ensure(e.Logger).WithContext(ctx).Error("billing job failed",
			"job_id", msg.JobID,
			"attempt", attempt,
			"error", err.Error(),
		)
		return delivery.Nack(ctx, e.Policy.NormalizeAttempt(core.JobNackOptions{
			Requeue: true,
			Reason:  err.Error(),
		}, attempt))
	}
	return delivery.Ack(ctx)
}

func (e *Executor) run(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch msg.JobID {
	case JobIDWebhookDispatch:
		if e.Dispatch == nil {
			return fmt.Errorf("gojob: dispatch runner is not configured")
		}
		_, err := e.Dispatch.RunCycle(ctx)
		return err
	case JobIDCatalogSync:
		if e.Catalog == nil {
			return fmt.Errorf("gojob: catalog syncer is not configured")
		}
		appID, _ := msg.Parameters["app_id"].(string)
		if strings.TrimSpace(appID) == "" {
			return fmt.Errorf("gojob: catalog sync requires an app_id parameter")
		}
		_, err := e.Catalog.SyncProducts(ctx, appID)
		return err
	default:
		return fmt.Errorf("gojob: unknown job id %q", msg.JobID)
	}
}
