package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SubmitReceipt verifies a client-supplied receipt against the storefront and
// records the subscriber plus the purchase it proves. Resubmitting the same
// receipt refreshes the stored snapshot instead of creating a second row.
func (s *Service) SubmitReceipt(ctx context.Context, in SubmitReceiptInput) (tx Transaction, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": in.AppID,
		"store":  string(in.Store),
	}
	defer func() {
		if tx.SubscriberID != "" {
			fields["subscriber_id"] = tx.SubscriberID
		}
		s.observeOperation(ctx, startedAt, "submit_receipt", err, fields)
	}()

	if s.appStore == nil || s.subscriberStore == nil || s.transactionStore == nil {
		err = s.mapError(fmt.Errorf("core: receipt intake requires app, subscriber, and transaction stores"))
		return Transaction{}, err
	}
	if in.AppID, err = requireTrimmed(in.AppID, "app id is required"); err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}
	if in.AppUserID, err = requireTrimmed(in.AppUserID, "app user id is required"); err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}
	if strings.TrimSpace(in.ReceiptData) == "" {
		err = s.mapError(fmt.Errorf("core: receipt data is required"))
		return Transaction{}, err
	}

	app, err := s.appStore.Get(ctx, in.AppID)
	if err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}
	store := in.Store
	if store == "" {
		store = app.Platform.DefaultStore()
	}
	if err = store.Validate(); err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}
	fields["store"] = string(store)

	client, err := s.storeClient(ctx, app, store)
	if err != nil {
		return Transaction{}, err
	}
	verified, err := client.VerifyPurchase(ctx, in.ReceiptData)
	if err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}

	subscriber, err := s.subscriberStore.Upsert(ctx, app.ID, in.AppUserID)
	if err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}

	productID := strings.TrimSpace(verified.ProductID)
	if productID == "" {
		productID = strings.TrimSpace(in.ProductID)
	}
	status := verified.Status
	if status == "" {
		status = TransactionStatusActive
	}
	tx, err = s.transactionStore.Upsert(ctx, Transaction{
		SubscriberID:       subscriber.ID,
		ProductID:          productID,
		Store:              store,
		StoreTransactionID: verified.StoreTransactionID,
		PurchaseDate:       verified.PurchaseDate,
		ExpirationDate:     verified.ExpirationDate,
		Status:             status,
		RawReceipt:         in.ReceiptData,
	})
	if err != nil {
		err = s.mapError(err)
		return Transaction{}, err
	}
	return tx, nil
}

// GetSubscriber returns the subscriber with the entitlements their active
// transactions currently unlock, newest purchases first.
func (s *Service) GetSubscriber(ctx context.Context, appID, appUserID string) (SubscriberInfo, error) {
	if s.subscriberStore == nil || s.transactionStore == nil {
		return SubscriberInfo{}, s.mapError(fmt.Errorf("core: subscriber lookup requires subscriber and transaction stores"))
	}
	appID, err := requireTrimmed(appID, "app id is required")
	if err != nil {
		return SubscriberInfo{}, s.mapError(err)
	}
	appUserID, err = requireTrimmed(appUserID, "app user id is required")
	if err != nil {
		return SubscriberInfo{}, s.mapError(err)
	}

	subscriber, err := s.subscriberStore.Get(ctx, appID, appUserID)
	if err != nil {
		return SubscriberInfo{}, s.mapError(err)
	}

	info := SubscriberInfo{
		Subscriber:         subscriber,
		ActiveEntitlements: []Entitlement{},
		Transactions:       []Transaction{},
	}
	if s.entitlementStore != nil {
		entitlements, listErr := s.entitlementStore.ListActiveBySubscriber(ctx, subscriber.ID)
		if listErr != nil {
			return SubscriberInfo{}, s.mapError(listErr)
		}
		info.ActiveEntitlements = entitlements
	}
	transactions, err := s.transactionStore.ListBySubscriber(ctx, subscriber.ID)
	if err != nil {
		return SubscriberInfo{}, s.mapError(err)
	}
	info.Transactions = transactions
	return info, nil
}
