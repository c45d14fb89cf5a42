package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EntitlementStore struct {
	db   *bun.DB
	repo repository.Repository[*entitlementRecord]
}

func NewEntitlementStore(db *bun.DB) (*EntitlementStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitlementRecord](db, entitlementHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entitlement repository wiring: %w", err)
		}
	}
	return &EntitlementStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EntitlementStore) Create(ctx context.Context, entitlement core.Entitlement) (core.Entitlement, error) {
	if s == nil || s.repo == nil {
		return core.Entitlement{}, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	appID := strings.TrimSpace(entitlement.AppID)
	name := strings.TrimSpace(entitlement.Name)
	if appID == "" {
		return core.Entitlement{}, fmt.Errorf("sqlstore: entitlement app id is required")
	}
	if name == "" {
		return core.Entitlement{}, fmt.Errorf("sqlstore: entitlement name is required")
	}

	record := &entitlementRecord{
		ID:          uuid.NewString(),
		AppID:       appID,
		Name:        name,
		Description: strings.TrimSpace(entitlement.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.Entitlement{}, err
	}
	return record.toDomain(), nil
}

func (s *EntitlementStore) ListByApp(ctx context.Context, appID string) ([]core.Entitlement, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("app_id", "=", strings.TrimSpace(appID)),
		repository.OrderBy("name ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entitlement, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ListActiveBySubscriber walks transaction -> product -> entitlement for the
// subscriber's active transactions. The product join is scoped to the
// subscriber's app so identical store product ids on other apps never leak
// entitlements across tenants.
func (s *EntitlementStore) ListActiveBySubscriber(ctx context.Context, subscriberID string) ([]core.Entitlement, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return []core.Entitlement{}, nil
	}

	var records []entitlementRecord
	err := s.db.NewSelect().
		Model(&records).
		Distinct().
		Join("JOIN iap_product_entitlements AS pe ON pe.entitlement_id = ?TableAlias.id").
		Join("JOIN iap_products AS p ON p.id = pe.product_id").
		Join("JOIN iap_transactions AS t ON t.product_id = p.store_product_id").
		Join("JOIN iap_subscribers AS sub ON sub.id = t.subscriber_id AND sub.app_id = p.app_id").
		Where("t.subscriber_id = ?", subscriberID).
		Where("t.status = ?", string(core.TransactionStatusActive)).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entitlement, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
