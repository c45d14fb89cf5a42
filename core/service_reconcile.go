package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReconcileNotification ingests one storefront server notification: it
// resolves the owning app, normalizes the payload into transaction events,
// refreshes the transaction snapshots those events describe, records the
// events, and queues one webhook delivery per active endpoint.
//
// Events that cannot be matched to a known transaction are still recorded,
// unbound, so nothing the storefront sent is ever dropped; fan-out is skipped
// for those.
func (s *Service) ReconcileNotification(ctx context.Context, in NotificationInput) (result ReconcileResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"store": string(in.Store),
	}
	defer func() {
		if result.AppID != "" {
			fields["app_id"] = result.AppID
		}
		fields["recorded"] = result.Recorded
		fields["enqueued"] = result.Enqueued
		s.observeOperation(ctx, startedAt, "reconcile_notification", err, fields)
	}()

	if s.appStore == nil || s.transactionStore == nil || s.eventStore == nil ||
		s.endpointStore == nil || s.deliveryStore == nil {
		err = s.mapError(fmt.Errorf("core: reconciliation requires app, transaction, event, endpoint, and delivery stores"))
		return result, err
	}
	if len(in.Body) == 0 {
		err = s.mapError(fmt.Errorf("core: notification body is required"))
		return result, err
	}
	if err = in.Store.Validate(); err != nil {
		err = s.mapError(err)
		return result, err
	}

	app, err := s.resolveNotificationApp(ctx, in)
	if err != nil {
		return result, err
	}
	result.AppID = app.ID

	client, err := s.storeClient(ctx, app, in.Store)
	if err != nil {
		return result, err
	}
	notification, err := client.ProcessNotification(ctx, in.Body)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	result.Events = notification.Events
	if len(notification.Events) == 0 {
		return result, nil
	}

	endpoints, err := s.endpointStore.ListActiveByApp(ctx, app.ID)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}

	for _, event := range notification.Events {
		stored, bound, recordErr := s.recordTransactionEvent(ctx, in.Store, event)
		if recordErr != nil {
			err = s.mapError(recordErr)
			return result, err
		}
		result.Recorded++
		if !bound || len(endpoints) == 0 {
			continue
		}

		now := s.clock()
		deliveries := make([]WebhookDelivery, 0, len(endpoints))
		for _, endpoint := range endpoints {
			deliveries = append(deliveries, WebhookDelivery{
				EndpointID: endpoint.ID,
				EventID:    stored.ID,
				Status:     DeliveryStatusPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
		if enqueueErr := s.deliveryStore.Enqueue(ctx, deliveries); enqueueErr != nil {
			err = s.mapError(enqueueErr)
			return result, err
		}
		result.Enqueued += len(deliveries)
	}
	return result, nil
}

func (s *Service) resolveNotificationApp(ctx context.Context, in NotificationInput) (App, error) {
	if appID := strings.TrimSpace(in.AppID); appID != "" {
		app, err := s.appStore.Get(ctx, appID)
		if err != nil {
			return App{}, s.mapError(err)
		}
		return app, nil
	}

	peek, err := s.peekClient(in.Store)
	if err != nil {
		return App{}, err
	}
	packageID, err := peek.PeekPackageID(in.Body)
	if err != nil {
		return App{}, s.mapError(err)
	}
	app, err := s.appStore.GetByBundleID(ctx, in.Store.Platform(), packageID)
	if err != nil {
		return App{}, s.mapError(err)
	}
	return app, nil
}

// recordTransactionEvent persists one normalized event. When the event's
// transaction is already known the stored snapshot is refreshed and the event
// binds to that subscriber; otherwise the event lands unbound.
func (s *Service) recordTransactionEvent(ctx context.Context, store Store, event TransactionEvent) (Event, bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Event{}, false, fmt.Errorf("core: encode transaction event: %w", err)
	}
	record := Event{
		EventType: string(event.Kind),
		Payload:   payload,
	}

	if txStore := event.Transaction.Store; txStore != "" {
		store = txStore
	}
	storeTransactionID := strings.TrimSpace(event.Transaction.StoreTransactionID)
	if storeTransactionID != "" {
		existing, lookupErr := s.transactionStore.GetByStoreTransactionID(ctx, store, storeTransactionID)
		switch {
		case lookupErr == nil:
			if event.Transaction.Status != "" {
				existing.Status = event.Transaction.Status
			}
			if event.Transaction.ExpirationDate != nil {
				existing.ExpirationDate = event.Transaction.ExpirationDate
			}
			if productID := strings.TrimSpace(event.Transaction.ProductID); productID != "" {
				existing.ProductID = productID
			}
			if _, upsertErr := s.transactionStore.Upsert(ctx, existing); upsertErr != nil {
				return Event{}, false, upsertErr
			}
			record.SubscriberID = existing.SubscriberID
		case errors.Is(lookupErr, ErrTransactionNotFound):
			// unknown transaction, keep the event unbound
		default:
			return Event{}, false, lookupErr
		}
	}

	stored, err := s.eventStore.Append(ctx, record)
	if err != nil {
		return Event{}, false, err
	}
	return stored, stored.SubscriberID != "", nil
}
