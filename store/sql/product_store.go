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

type ProductStore struct {
	db   *bun.DB
	repo repository.Repository[*productRecord]
}

func NewProductStore(db *bun.DB) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*productRecord](db, productHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid product repository wiring: %w", err)
		}
	}
	return &ProductStore{
		db:   db,
		repo: repo,
	}, nil
}

// Create inserts the product and its entitlement links in one transaction.
// Every referenced entitlement must already exist on the same app.
func (s *ProductStore) Create(ctx context.Context, product core.Product, entitlementIDs []string) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	product.AppID = strings.TrimSpace(product.AppID)
	product.StoreProductID = strings.TrimSpace(product.StoreProductID)
	if product.AppID == "" {
		return core.Product{}, fmt.Errorf("sqlstore: product app id is required")
	}
	if product.StoreProductID == "" {
		return core.Product{}, fmt.Errorf("sqlstore: store product id is required")
	}
	now := time.Now().UTC()

	var out core.Product
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := newProductRecord(product, now)
		record.ID = uuid.NewString()
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			return insertErr
		}

		seen := map[string]struct{}{}
		for _, entitlementID := range entitlementIDs {
			entitlementID = strings.TrimSpace(entitlementID)
			if entitlementID == "" {
				continue
			}
			if _, dup := seen[entitlementID]; dup {
				continue
			}
			seen[entitlementID] = struct{}{}

			entitlement := &entitlementRecord{}
			lookupErr := tx.NewSelect().
				Model(entitlement).
				Where("?TableAlias.id = ?", entitlementID).
				Limit(1).
				Scan(ctx)
			if lookupErr != nil {
				if lookupErr == sql.ErrNoRows {
					return fmt.Errorf("sqlstore: entitlement %q not found", entitlementID)
				}
				return lookupErr
			}
			if entitlement.AppID != record.AppID {
				return fmt.Errorf("sqlstore: entitlement %q is invalid for app %q", entitlementID, record.AppID)
			}

			link := &productEntitlementRecord{
				ID:            uuid.NewString(),
				ProductID:     record.ID,
				EntitlementID: entitlementID,
				CreatedAt:     now,
			}
			if _, linkErr := tx.NewInsert().Model(link).Exec(ctx); linkErr != nil {
				return linkErr
			}
		}

		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Product{}, err
	}
	return out, nil
}

func (s *ProductStore) ListByApp(ctx context.Context, appID string) ([]core.Product, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: product store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("app_id", "=", strings.TrimSpace(appID)),
		repository.OrderBy("store_product_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Product, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpsertSynced refreshes the app's catalog rows from a storefront snapshot
// and stamps each touched row with the sync time. It returns the number of
// rows written.
func (s *ProductStore) UpsertSynced(ctx context.Context, appID string, products []core.StoreProduct, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: product store is not configured")
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return 0, fmt.Errorf("sqlstore: app id is required")
	}
	if len(products) == 0 {
		return 0, nil
	}
	syncedAt := now.UTC()
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC()
	}

	synced := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, product := range products {
			storeProductID := strings.TrimSpace(product.StoreProductID)
			if storeProductID == "" {
				continue
			}

			existing, findErr := findProductTx(ctx, tx, appID, storeProductID)
			if findErr != nil {
				return findErr
			}
			if existing == nil {
				record := newProductRecord(core.Product{
					AppID:              appID,
					StoreProductID:     storeProductID,
					ProductType:        product.ProductType,
					DisplayName:        product.DisplayName,
					Description:        product.Description,
					PriceMicros:        product.PriceMicros,
					Currency:           product.Currency,
					SubscriptionPeriod: product.SubscriptionPeriod,
					TrialPeriod:        product.TrialPeriod,
				}, syncedAt)
				record.ID = uuid.NewString()
				record.LastSyncedAt = &syncedAt
				if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
					return insertErr
				}
				synced++
				continue
			}

			existing.DisplayName = strings.TrimSpace(product.DisplayName)
			existing.Description = strings.TrimSpace(product.Description)
			existing.PriceMicros = product.PriceMicros
			existing.Currency = strings.TrimSpace(product.Currency)
			existing.SubscriptionPeriod = strings.TrimSpace(product.SubscriptionPeriod)
			existing.TrialPeriod = strings.TrimSpace(product.TrialPeriod)
			if productType := strings.TrimSpace(product.ProductType); productType != "" {
				existing.ProductType = productType
			}
			existing.LastSyncedAt = &syncedAt
			existing.UpdatedAt = syncedAt

			if _, updateErr := tx.NewUpdate().
				Model(existing).
				Where("id = ?", existing.ID).
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			synced++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return synced, nil
}

func findProductTx(ctx context.Context, tx bun.Tx, appID, storeProductID string) (*productRecord, error) {
	record := &productRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.app_id = ?", appID).
		Where("?TableAlias.store_product_id = ?", storeProductID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}
