package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-iap/core"
)

// Connect resources share the JSON:API envelope, so one resource shape with a
// catch-all attributes struct covers every step of the walk.
type connectResourceList struct {
	Data []connectResource `json:"data"`
}

type connectResourceDocument struct {
	Data connectResource `json:"data"`
}

type connectResource struct {
	ID            string                     `json:"id"`
	Attributes    connectAttributes          `json:"attributes"`
	Relationships map[string]connectRelation `json:"relationships"`
}

type connectAttributes struct {
	Name               string `json:"name"`
	ProductID          string `json:"productId"`
	Locale             string `json:"locale"`
	Description        string `json:"description"`
	SubscriptionPeriod string `json:"subscriptionPeriod"`
	Duration           string `json:"duration"`
	CustomerPrice      string `json:"customerPrice"`
	Currency           string `json:"currency"`
	InAppPurchaseType  string `json:"inAppPurchaseType"`
}

type connectRelation struct {
	Links struct {
		Related string `json:"related"`
	} `json:"links"`
}

// SyncProducts walks the App Store Connect catalog for the app: subscription
// groups and their subscriptions first, then one-time in-app purchases.
// Detail lookups degrade one by one, so a partially configured catalog still
// syncs: a missing localization falls back to the subscription name, a
// missing price to zero USD.
func (c *Client) SyncProducts(ctx context.Context) ([]core.StoreProduct, error) {
	if c.assertion == nil {
		return nil, fmt.Errorf("providers/apple: store credentials are required")
	}
	// One assertion covers the whole walk.
	token, err := c.assertion.SignConnectToken()
	if err != nil {
		return nil, err
	}

	appID, err := c.findConnectAppID(ctx, token)
	if err != nil {
		return nil, err
	}

	products, err := c.fetchSubscriptions(ctx, token, appID)
	if err != nil {
		return nil, err
	}

	oneTime, err := c.fetchInAppPurchases(ctx, token, appID)
	if err != nil {
		return nil, err
	}
	return append(products, oneTime...), nil
}

func (c *Client) findConnectAppID(ctx context.Context, token string) (string, error) {
	resp, err := c.connectGet(ctx, token, c.connectURL+"/v1/apps", map[string]string{
		"filter[bundleId]": c.app.BundleID,
	})
	if err != nil {
		return "", err
	}
	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: connect api returned status %d", core.ErrStoreUnavailable, resp.StatusCode)
	}
	var list connectResourceList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return "", fmt.Errorf("%w: connect app lookup: %v", core.ErrMalformedResponse, err)
	}
	if len(list.Data) == 0 || strings.TrimSpace(list.Data[0].ID) == "" {
		return "", fmt.Errorf("providers/apple: no app in app store connect for bundle id %q", c.app.BundleID)
	}
	return list.Data[0].ID, nil
}

func (c *Client) fetchSubscriptions(ctx context.Context, token, appID string) ([]core.StoreProduct, error) {
	groups, err := c.listConnectResources(ctx, token, c.connectURL+"/v1/apps/"+url.PathEscape(appID)+"/subscriptionGroups")
	if err != nil {
		return nil, err
	}

	var products []core.StoreProduct
	for _, group := range groups {
		subscriptions, err := c.listConnectResources(ctx, token, c.connectURL+"/v1/subscriptionGroups/"+url.PathEscape(group.ID)+"/subscriptions")
		if err != nil {
			return nil, err
		}
		for _, subscription := range subscriptions {
			products = append(products, c.buildSubscriptionProduct(ctx, token, subscription))
		}
	}
	return products, nil
}

func (c *Client) buildSubscriptionProduct(ctx context.Context, token string, subscription connectResource) core.StoreProduct {
	productID := strings.TrimSpace(subscription.Attributes.ProductID)
	name := strings.TrimSpace(subscription.Attributes.Name)
	if name == "" {
		name = productID
	}

	product := core.StoreProduct{
		StoreProductID: productID,
		DisplayName:    name,
		Currency:       "USD",
		ProductType:    core.ProductTypeSubscription,
	}

	if display, description, err := c.fetchLocalization(ctx, token, subscription.ID); err == nil {
		product.DisplayName = display
		product.Description = description
	}
	if micros, currency, err := c.fetchPrice(ctx, token, subscription.ID); err == nil {
		product.PriceMicros = micros
		product.Currency = currency
	}
	if period, err := c.fetchPeriod(ctx, token, subscription.ID); err == nil {
		product.SubscriptionPeriod = period
	}
	if trial, err := c.fetchTrialPeriod(ctx, token, subscription.ID); err == nil {
		product.TrialPeriod = trial
	}
	return product
}

// fetchLocalization prefers en-US and settles for the first localization
// otherwise.
func (c *Client) fetchLocalization(ctx context.Context, token, subscriptionID string) (string, string, error) {
	localizations, err := c.listConnectResources(ctx, token, c.connectURL+"/v1/subscriptions/"+url.PathEscape(subscriptionID)+"/subscriptionLocalizations")
	if err != nil {
		return "", "", err
	}
	if len(localizations) == 0 {
		return "", "", fmt.Errorf("providers/apple: subscription %q has no localizations", subscriptionID)
	}

	chosen := localizations[0]
	for _, localization := range localizations {
		if localization.Attributes.Locale == "en-US" {
			chosen = localization
			break
		}
	}
	return strings.TrimSpace(chosen.Attributes.Name), strings.TrimSpace(chosen.Attributes.Description), nil
}

// fetchPrice follows the first price's related links: the price point carries
// the customer price, its territory the currency. A failed territory lookup
// keeps the computed price and falls back to USD.
func (c *Client) fetchPrice(ctx context.Context, token, subscriptionID string) (int64, string, error) {
	prices, err := c.listConnectResources(ctx, token, c.connectURL+"/v1/subscriptions/"+url.PathEscape(subscriptionID)+"/prices")
	if err != nil {
		return 0, "", err
	}
	if len(prices) == 0 {
		return 0, "", fmt.Errorf("providers/apple: subscription %q has no prices", subscriptionID)
	}

	pricePointURL := relatedLink(prices[0], "subscriptionPricePoint")
	if pricePointURL == "" {
		return 0, "", fmt.Errorf("providers/apple: subscription %q price has no price point link", subscriptionID)
	}
	pricePoint, err := c.getConnectDocument(ctx, token, pricePointURL)
	if err != nil {
		return 0, "", err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(pricePoint.Data.Attributes.CustomerPrice), 64)
	if err != nil {
		amount = 0
	}
	micros := int64(amount * 1_000_000)

	currency := "USD"
	if territoryURL := relatedLink(pricePoint.Data, "territory"); territoryURL != "" {
		if territory, err := c.getConnectDocument(ctx, token, territoryURL); err == nil {
			if code := strings.TrimSpace(territory.Data.Attributes.Currency); code != "" {
				currency = code
			}
		}
	}
	return micros, currency, nil
}

func (c *Client) fetchPeriod(ctx context.Context, token, subscriptionID string) (string, error) {
	document, err := c.getConnectDocument(ctx, token, c.connectURL+"/v1/subscriptions/"+url.PathEscape(subscriptionID))
	if err != nil {
		return "", err
	}
	period := strings.TrimSpace(document.Data.Attributes.SubscriptionPeriod)
	if period == "" {
		period = "ONE_MONTH"
	}
	return isoPeriod(period), nil
}

// fetchTrialPeriod reads the first introductory offer. No offers means no
// trial, not an error.
func (c *Client) fetchTrialPeriod(ctx context.Context, token, subscriptionID string) (string, error) {
	offers, err := c.listConnectResources(ctx, token, c.connectURL+"/v1/subscriptions/"+url.PathEscape(subscriptionID)+"/introductoryOffers")
	if err != nil {
		return "", err
	}
	if len(offers) == 0 {
		return "", nil
	}
	duration := strings.TrimSpace(offers[0].Attributes.Duration)
	if duration == "" {
		duration = "P1W"
	}
	return isoPeriod(duration), nil
}

func (c *Client) fetchInAppPurchases(ctx context.Context, token, appID string) ([]core.StoreProduct, error) {
	purchases, err := c.listConnectResources(ctx, token, c.connectURL+"/v2/apps/"+url.PathEscape(appID)+"/inAppPurchasesV2")
	if err != nil {
		return nil, err
	}

	products := make([]core.StoreProduct, 0, len(purchases))
	for _, purchase := range purchases {
		productID := strings.TrimSpace(purchase.Attributes.ProductID)
		name := strings.TrimSpace(purchase.Attributes.Name)
		if name == "" {
			name = productID
		}
		products = append(products, core.StoreProduct{
			StoreProductID: productID,
			DisplayName:    name,
			Currency:       "USD",
			ProductType:    mapInAppPurchaseType(purchase.Attributes.InAppPurchaseType),
		})
	}
	return products, nil
}

func (c *Client) listConnectResources(ctx context.Context, token, rawURL string) ([]connectResource, error) {
	resp, err := c.connectGet(ctx, token, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: connect api returned status %d", core.ErrStoreUnavailable, resp.StatusCode)
	}
	var list connectResourceList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("%w: connect listing: %v", core.ErrMalformedResponse, err)
	}
	return list.Data, nil
}

func (c *Client) getConnectDocument(ctx context.Context, token, rawURL string) (connectResourceDocument, error) {
	resp, err := c.connectGet(ctx, token, rawURL, nil)
	if err != nil {
		return connectResourceDocument{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return connectResourceDocument{}, fmt.Errorf("%w: connect api returned status %d", core.ErrStoreUnavailable, resp.StatusCode)
	}
	var document connectResourceDocument
	if err := json.Unmarshal(resp.Body, &document); err != nil {
		return connectResourceDocument{}, fmt.Errorf("%w: connect document: %v", core.ErrMalformedResponse, err)
	}
	return document, nil
}

func relatedLink(resource connectResource, relation string) string {
	rel, ok := resource.Relationships[relation]
	if !ok {
		return ""
	}
	return strings.TrimSpace(rel.Links.Related)
}

// isoPeriod rewrites Connect duration names as ISO 8601 periods. Unknown
// names pass through untouched.
func isoPeriod(duration string) string {
	switch duration {
	case "THREE_DAYS":
		return "P3D"
	case "ONE_WEEK":
		return "P1W"
	case "TWO_WEEKS":
		return "P2W"
	case "ONE_MONTH":
		return "P1M"
	case "TWO_MONTHS":
		return "P2M"
	case "THREE_MONTHS":
		return "P3M"
	case "SIX_MONTHS":
		return "P6M"
	case "ONE_YEAR":
		return "P1Y"
	default:
		return duration
	}
}

// mapInAppPurchaseType folds Connect's one-time purchase taxonomy. Anything
// unrecognized sells like a consumable.
func mapInAppPurchaseType(vendorType string) string {
	if strings.TrimSpace(vendorType) == "NON_CONSUMABLE" {
		return core.ProductTypeNonConsumable
	}
	return core.ProductTypeConsumable
}
