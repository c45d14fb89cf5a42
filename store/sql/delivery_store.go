package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeliveryStore) Enqueue(ctx context.Context, deliveries []core.WebhookDelivery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	if len(deliveries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]*webhookDeliveryRecord, 0, len(deliveries))
	for _, delivery := range deliveries {
		if strings.TrimSpace(delivery.EndpointID) == "" {
			return fmt.Errorf("sqlstore: webhook delivery endpoint id is required")
		}
		if strings.TrimSpace(delivery.EventID) == "" {
			return fmt.Errorf("sqlstore: webhook delivery event id is required")
		}
		record := newDeliveryRecord(delivery, now)
		record.ID = uuid.NewString()
		records = append(records, record)
	}
	_, err := s.db.NewInsert().Model(&records).Exec(ctx)
	return err
}

// ClaimDue leases the oldest due deliveries for active endpoints. A claim
// marks claimed_at without touching status; rows stay invisible to other
// claimers until the lease expires. Each claim is returned joined with the
// endpoint target and event payload so dispatch needs no further reads.
func (s *DeliveryStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]core.ClaimedDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	claimAt := now.UTC()
	leaseFloor := claimAt.Add(-lease)

	var claimed []webhookDeliveryRecord
	endpoints := map[string]*webhookEndpointRecord{}
	events := map[string]*eventRecord{}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH due AS (
	SELECT wd.id
	FROM iap_webhook_deliveries AS wd
	JOIN iap_webhook_endpoints AS we ON we.id = wd.endpoint_id
	WHERE wd.status IN (?, ?)
	  AND (wd.next_retry_at IS NULL OR wd.next_retry_at <= ?)
	  AND (wd.claimed_at IS NULL OR wd.claimed_at <= ?)
	  AND we.active = ?
	ORDER BY wd.created_at ASC
	LIMIT ?
)
UPDATE iap_webhook_deliveries
SET claimed_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM due)
  AND status IN (?, ?)
  AND (claimed_at IS NULL OR claimed_at <= ?)
RETURNING
	id,
	endpoint_id,
	event_id,
	status,
	attempts,
	last_attempt_at,
	last_error,
	next_retry_at,
	claimed_at,
	created_at,
	updated_at
`
		if scanErr := tx.NewRaw(
			query,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusFailed),
			claimAt,
			leaseFloor,
			true,
			limit,
			claimAt,
			claimAt,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusFailed),
			leaseFloor,
		).Scan(ctx, &claimed); scanErr != nil {
			return scanErr
		}
		if len(claimed) == 0 {
			return nil
		}

		endpointIDs := make([]string, 0, len(claimed))
		eventIDs := make([]string, 0, len(claimed))
		for _, record := range claimed {
			endpointIDs = append(endpointIDs, record.EndpointID)
			eventIDs = append(eventIDs, record.EventID)
		}

		var endpointRecords []*webhookEndpointRecord
		if selectErr := tx.NewSelect().
			Model(&endpointRecords).
			Where("?TableAlias.id IN (?)", bun.In(endpointIDs)).
			Scan(ctx); selectErr != nil {
			return selectErr
		}
		for _, record := range endpointRecords {
			endpoints[record.ID] = record
		}

		var eventRecords []*eventRecord
		if selectErr := tx.NewSelect().
			Model(&eventRecords).
			Where("?TableAlias.id IN (?)", bun.In(eventIDs)).
			Scan(ctx); selectErr != nil {
			return selectErr
		}
		for _, record := range eventRecords {
			events[record.ID] = record
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.ClaimedDelivery, 0, len(claimed))
	for _, record := range claimed {
		endpoint, okEndpoint := endpoints[record.EndpointID]
		event, okEvent := events[record.EventID]
		if !okEndpoint || !okEvent {
			// Rows whose endpoint or event vanished stay claimed until
			// the lease lapses.
			continue
		}
		out = append(out, core.ClaimedDelivery{
			Delivery: record.toDomain(),
			URL:      endpoint.URL,
			Secret:   endpoint.Secret,
			Payload:  append([]byte(nil), event.Payload...),
		})
	}
	return out, nil
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrDeliveryNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusDelivered)).
		Set("attempts = ?", attempts).
		Set("last_attempt_at = ?", at.UTC()).
		Set("last_error = ?", "").
		Set("next_retry_at = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status IN (?, ?)", string(core.DeliveryStatusPending), string(core.DeliveryStatusFailed)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return s.markMissError(ctx, id, core.DeliveryStatusDelivered)
	}
	return nil
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, id string, attempts int, cause string, nextRetryAt time.Time, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrDeliveryNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusFailed)).
		Set("attempts = ?", attempts).
		Set("last_attempt_at = ?", at.UTC()).
		Set("last_error = ?", strings.TrimSpace(cause)).
		Set("next_retry_at = ?", nextRetryAt.UTC()).
		Set("claimed_at = NULL").
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status IN (?, ?)", string(core.DeliveryStatusPending), string(core.DeliveryStatusFailed)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return s.markMissError(ctx, id, core.DeliveryStatusFailed)
	}
	return nil
}

// MarkDeadLetter parks a delivery permanently. Only failed deliveries dead
// letter; a pending one must fail at least once first.
func (s *DeliveryStore) MarkDeadLetter(ctx context.Context, id string, attempts int, cause string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrDeliveryNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusDeadLetter)).
		Set("attempts = ?", attempts).
		Set("last_attempt_at = ?", at.UTC()).
		Set("last_error = ?", strings.TrimSpace(cause)).
		Set("next_retry_at = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusFailed)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return s.markMissError(ctx, id, core.DeliveryStatusDeadLetter)
	}
	return nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookDelivery{}, core.ErrDeliveryNotFound
		}
		return core.WebhookDelivery{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) List(ctx context.Context, in core.ListDeliveriesInput) ([]core.WebhookDelivery, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	limit := normalizeLimit(in.Limit)

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if status := strings.TrimSpace(string(in.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookDelivery, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// markMissError distinguishes "no such delivery" from "delivery exists but
// its status forbids the transition" after a guarded update matched nothing.
func (s *DeliveryStore) markMissError(ctx context.Context, id string, target core.DeliveryStatus) error {
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidDeliveryStatusTransition, delivery.Status, target)
}
