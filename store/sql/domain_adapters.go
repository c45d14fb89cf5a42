package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
)

func newAppRecord(in core.RegisterAppInput, now time.Time) *appRecord {
	return &appRecord{
		Name:      strings.TrimSpace(in.Name),
		Platform:  string(in.Platform),
		BundleID:  strings.TrimSpace(in.BundleID),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *appRecord) toDomain() core.App {
	if r == nil {
		return core.App{}
	}
	return core.App{
		ID:        r.ID,
		Name:      r.Name,
		Platform:  core.Platform(r.Platform),
		BundleID:  r.BundleID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newAPIKeyRecord(key core.APIKey, now time.Time) *apiKeyRecord {
	createdAt := key.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	record := &apiKeyRecord{
		AppID:     strings.TrimSpace(key.AppID),
		KeyHash:   strings.TrimSpace(key.KeyHash),
		CreatedAt: createdAt,
	}
	if key.RevokedAt != nil {
		value := key.RevokedAt.UTC()
		record.RevokedAt = &value
	}
	return record
}

func (r *apiKeyRecord) toDomain() core.APIKey {
	if r == nil {
		return core.APIKey{}
	}
	key := core.APIKey{
		ID:        r.ID,
		AppID:     r.AppID,
		KeyHash:   r.KeyHash,
		CreatedAt: r.CreatedAt,
	}
	if r.RevokedAt != nil {
		value := *r.RevokedAt
		key.RevokedAt = &value
	}
	return key
}

func (r *subscriberRecord) toDomain() core.Subscriber {
	if r == nil {
		return core.Subscriber{}
	}
	return core.Subscriber{
		ID:        r.ID,
		AppID:     r.AppID,
		AppUserID: r.AppUserID,
		CreatedAt: r.CreatedAt,
	}
}

func newTransactionRecord(tx core.Transaction, now time.Time) *transactionRecord {
	purchaseDate := tx.PurchaseDate.UTC()
	if purchaseDate.IsZero() {
		purchaseDate = now
	}
	record := &transactionRecord{
		SubscriberID:       strings.TrimSpace(tx.SubscriberID),
		ProductID:          strings.TrimSpace(tx.ProductID),
		Store:              string(tx.Store),
		StoreTransactionID: strings.TrimSpace(tx.StoreTransactionID),
		PurchaseDate:       purchaseDate,
		Status:             string(tx.Status),
		RawReceipt:         tx.RawReceipt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if tx.ExpirationDate != nil {
		value := tx.ExpirationDate.UTC()
		record.ExpirationDate = &value
	}
	return record
}

func (r *transactionRecord) toDomain() core.Transaction {
	if r == nil {
		return core.Transaction{}
	}
	tx := core.Transaction{
		ID:                 r.ID,
		SubscriberID:       r.SubscriberID,
		ProductID:          r.ProductID,
		Store:              core.Store(r.Store),
		StoreTransactionID: r.StoreTransactionID,
		PurchaseDate:       r.PurchaseDate,
		Status:             core.TransactionStatus(r.Status),
		RawReceipt:         r.RawReceipt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.ExpirationDate != nil {
		value := *r.ExpirationDate
		tx.ExpirationDate = &value
	}
	return tx
}

func newEventRecord(event core.Event, now time.Time) *eventRecord {
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	record := &eventRecord{
		EventType: strings.TrimSpace(event.EventType),
		Payload:   append([]byte(nil), event.Payload...),
		CreatedAt: createdAt,
	}
	if trimmed := strings.TrimSpace(event.SubscriberID); trimmed != "" {
		record.SubscriberID = &trimmed
	}
	return record
}

func (r *eventRecord) toDomain() core.Event {
	if r == nil {
		return core.Event{}
	}
	event := core.Event{
		ID:        r.ID,
		EventType: r.EventType,
		Payload:   append([]byte(nil), r.Payload...),
		CreatedAt: r.CreatedAt,
	}
	if r.SubscriberID != nil {
		event.SubscriberID = strings.TrimSpace(*r.SubscriberID)
	}
	return event
}

func (r *entitlementRecord) toDomain() core.Entitlement {
	if r == nil {
		return core.Entitlement{}
	}
	return core.Entitlement{
		ID:          r.ID,
		AppID:       r.AppID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

func newProductRecord(product core.Product, now time.Time) *productRecord {
	productType := strings.TrimSpace(product.ProductType)
	if productType == "" {
		productType = core.ProductTypeSubscription
	}
	record := &productRecord{
		AppID:              strings.TrimSpace(product.AppID),
		StoreProductID:     strings.TrimSpace(product.StoreProductID),
		ProductType:        productType,
		DisplayName:        strings.TrimSpace(product.DisplayName),
		Description:        strings.TrimSpace(product.Description),
		PriceMicros:        product.PriceMicros,
		Currency:           strings.TrimSpace(product.Currency),
		SubscriptionPeriod: strings.TrimSpace(product.SubscriptionPeriod),
		TrialPeriod:        strings.TrimSpace(product.TrialPeriod),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if product.LastSyncedAt != nil {
		value := product.LastSyncedAt.UTC()
		record.LastSyncedAt = &value
	}
	return record
}

func (r *productRecord) toDomain() core.Product {
	if r == nil {
		return core.Product{}
	}
	product := core.Product{
		ID:                 r.ID,
		AppID:              r.AppID,
		StoreProductID:     r.StoreProductID,
		ProductType:        r.ProductType,
		DisplayName:        r.DisplayName,
		Description:        r.Description,
		PriceMicros:        r.PriceMicros,
		Currency:           r.Currency,
		SubscriptionPeriod: r.SubscriptionPeriod,
		TrialPeriod:        r.TrialPeriod,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.LastSyncedAt != nil {
		value := *r.LastSyncedAt
		product.LastSyncedAt = &value
	}
	return product
}

func newEndpointRecord(endpoint core.WebhookEndpoint, now time.Time) *webhookEndpointRecord {
	createdAt := endpoint.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return &webhookEndpointRecord{
		AppID:     strings.TrimSpace(endpoint.AppID),
		URL:       strings.TrimSpace(endpoint.URL),
		Secret:    endpoint.Secret,
		Active:    endpoint.Active,
		CreatedAt: createdAt,
	}
}

func (r *webhookEndpointRecord) toDomain() core.WebhookEndpoint {
	if r == nil {
		return core.WebhookEndpoint{}
	}
	return core.WebhookEndpoint{
		ID:        r.ID,
		AppID:     r.AppID,
		URL:       r.URL,
		Secret:    r.Secret,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

func newDeliveryRecord(delivery core.WebhookDelivery, now time.Time) *webhookDeliveryRecord {
	status := string(delivery.Status)
	if strings.TrimSpace(status) == "" {
		status = string(core.DeliveryStatusPending)
	}
	record := &webhookDeliveryRecord{
		EndpointID: strings.TrimSpace(delivery.EndpointID),
		EventID:    strings.TrimSpace(delivery.EventID),
		Status:     status,
		Attempts:   delivery.Attempts,
		LastError:  delivery.LastError,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if delivery.LastAttemptAt != nil {
		value := delivery.LastAttemptAt.UTC()
		record.LastAttemptAt = &value
	}
	if delivery.NextRetryAt != nil {
		value := delivery.NextRetryAt.UTC()
		record.NextRetryAt = &value
	}
	return record
}

func (r *webhookDeliveryRecord) toDomain() core.WebhookDelivery {
	if r == nil {
		return core.WebhookDelivery{}
	}
	delivery := core.WebhookDelivery{
		ID:         r.ID,
		EndpointID: r.EndpointID,
		EventID:    r.EventID,
		Status:     core.DeliveryStatus(r.Status),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastAttemptAt != nil {
		value := *r.LastAttemptAt
		delivery.LastAttemptAt = &value
	}
	if r.NextRetryAt != nil {
		value := *r.NextRetryAt
		delivery.NextRetryAt = &value
	}
	return delivery
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
