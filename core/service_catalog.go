package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Service) CreateEntitlement(ctx context.Context, appID string, in CreateEntitlementInput) (entitlement Entitlement, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": appID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_entitlement", err, fields)
	}()

	if s.entitlementStore == nil {
		err = s.mapError(fmt.Errorf("core: entitlement store is not configured"))
		return Entitlement{}, err
	}
	if appID, err = requireTrimmed(appID, "app id is required"); err != nil {
		err = s.mapError(err)
		return Entitlement{}, err
	}
	name, nameErr := requireTrimmed(in.Name, "entitlement name is required")
	if nameErr != nil {
		err = s.mapError(nameErr)
		return Entitlement{}, err
	}
	if _, err = s.GetApp(ctx, appID); err != nil {
		return Entitlement{}, err
	}

	entitlement, err = s.entitlementStore.Create(ctx, Entitlement{
		AppID:       appID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		err = s.mapError(err)
		return Entitlement{}, err
	}
	return entitlement, nil
}

func (s *Service) ListEntitlements(ctx context.Context, appID string) ([]Entitlement, error) {
	if s.entitlementStore == nil {
		return nil, s.mapError(fmt.Errorf("core: entitlement store is not configured"))
	}
	appID, err := requireTrimmed(appID, "app id is required")
	if err != nil {
		return nil, s.mapError(err)
	}
	entitlements, err := s.entitlementStore.ListByApp(ctx, appID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entitlements, nil
}

func (s *Service) CreateProduct(ctx context.Context, appID string, in CreateProductInput) (product Product, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": appID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_product", err, fields)
	}()

	if s.productStore == nil {
		err = s.mapError(fmt.Errorf("core: product store is not configured"))
		return Product{}, err
	}
	if appID, err = requireTrimmed(appID, "app id is required"); err != nil {
		err = s.mapError(err)
		return Product{}, err
	}
	storeProductID, idErr := requireTrimmed(in.StoreProductID, "store product id is required")
	if idErr != nil {
		err = s.mapError(idErr)
		return Product{}, err
	}
	productType := strings.TrimSpace(in.ProductType)
	if productType == "" {
		productType = ProductTypeSubscription
	}
	if _, err = s.GetApp(ctx, appID); err != nil {
		return Product{}, err
	}

	product, err = s.productStore.Create(ctx, Product{
		AppID:          appID,
		StoreProductID: storeProductID,
		ProductType:    productType,
		DisplayName:    strings.TrimSpace(in.DisplayName),
		Currency:       s.config.Catalog.DefaultCurrency,
	}, in.EntitlementIDs)
	if err != nil {
		err = s.mapError(err)
		return Product{}, err
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, appID string) ([]Product, error) {
	if s.productStore == nil {
		return nil, s.mapError(fmt.Errorf("core: product store is not configured"))
	}
	appID, err := requireTrimmed(appID, "app id is required")
	if err != nil {
		return nil, s.mapError(err)
	}
	products, err := s.productStore.ListByApp(ctx, appID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return products, nil
}

// SyncProducts pulls the storefront catalog for the app and refreshes the
// local product rows. Stores without a catalog surface report zero synced
// products rather than failing.
func (s *Service) SyncProducts(ctx context.Context, appID string) (result CatalogSyncResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": appID,
	}
	defer func() {
		fields["synced"] = result.Synced
		s.observeOperation(ctx, startedAt, "sync_products", err, fields)
	}()

	if s.appStore == nil || s.productStore == nil {
		err = s.mapError(fmt.Errorf("core: catalog sync requires app and product stores"))
		return CatalogSyncResult{}, err
	}
	if appID, err = requireTrimmed(appID, "app id is required"); err != nil {
		err = s.mapError(err)
		return CatalogSyncResult{}, err
	}

	app, err := s.appStore.Get(ctx, appID)
	if err != nil {
		err = s.mapError(err)
		return CatalogSyncResult{}, err
	}
	store := app.Platform.DefaultStore()
	fields["store"] = string(store)

	client, err := s.storeClient(ctx, app, store)
	if err != nil {
		return CatalogSyncResult{}, err
	}
	products, err := client.SyncProducts(ctx)
	if err != nil {
		err = s.mapError(err)
		return CatalogSyncResult{}, err
	}
	if len(products) == 0 {
		result = CatalogSyncResult{ProductIDs: []string{}}
		return result, nil
	}

	synced, err := s.productStore.UpsertSynced(ctx, app.ID, products, s.clock())
	if err != nil {
		err = s.mapError(err)
		return CatalogSyncResult{}, err
	}
	ids := make([]string, 0, len(products))
	for _, product := range products {
		ids = append(ids, product.StoreProductID)
	}
	result = CatalogSyncResult{Synced: synced, ProductIDs: ids}
	return result, nil
}
