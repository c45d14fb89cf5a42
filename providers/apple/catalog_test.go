package apple

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-iap/core"
)

const connectBase = "https://api.appstoreconnect.apple.com"

func newCatalogTransport(routes map[string]string) *stubTransport {
	transport := &stubTransport{}
	transport.respond = func(req core.TransportRequest) (core.TransportResponse, error) {
		body, ok := routes[req.URL]
		if !ok {
			return core.TransportResponse{StatusCode: http.StatusNotFound}, nil
		}
		return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(body)}, nil
	}
	return transport
}

func catalogRoutes() map[string]string {
	return map[string]string{
		connectBase + "/v1/apps": `{"data":[{"id":"app-123"}]}`,
		connectBase + "/v1/apps/app-123/subscriptionGroups": `{"data":[{"id":"group-1"}]}`,
		connectBase + "/v1/subscriptionGroups/group-1/subscriptions": `{"data":[
			{"id":"sub-1","attributes":{"productId":"com.example.starfall.pro.monthly","name":"Pro Monthly"}}
		]}`,
		connectBase + "/v1/subscriptions/sub-1/subscriptionLocalizations": `{"data":[
			{"id":"loc-de","attributes":{"locale":"de-DE","name":"Pro Monat","description":"Schaltet alles frei"}},
			{"id":"loc-en","attributes":{"locale":"en-US","name":"Pro Monthly","description":"Unlocks everything"}}
		]}`,
		connectBase + "/v1/subscriptions/sub-1/prices": `{"data":[
			{"id":"price-1","relationships":{"subscriptionPricePoint":{"links":{"related":"` + connectBase + `/v1/subscriptionPricePoints/pp-1"}}}}
		]}`,
		connectBase + "/v1/subscriptionPricePoints/pp-1": `{"data":{"id":"pp-1","attributes":{"customerPrice":"9.99"},"relationships":{"territory":{"links":{"related":"` + connectBase + `/v1/territories/DEU"}}}}}`,
		connectBase + "/v1/territories/DEU":              `{"data":{"id":"DEU","attributes":{"currency":"EUR"}}}`,
		connectBase + "/v1/subscriptions/sub-1":          `{"data":{"id":"sub-1","attributes":{"subscriptionPeriod":"ONE_MONTH"}}}`,
		connectBase + "/v1/subscriptions/sub-1/introductoryOffers": `{"data":[{"id":"offer-1","attributes":{"duration":"ONE_WEEK"}}]}`,
		connectBase + "/v2/apps/app-123/inAppPurchasesV2": `{"data":[
			{"id":"iap-1","attributes":{"productId":"com.example.starfall.gems100","name":"100 Gems","inAppPurchaseType":"CONSUMABLE"}},
			{"id":"iap-2","attributes":{"productId":"com.example.starfall.skin.founder","name":"Founder Skin","inAppPurchaseType":"NON_CONSUMABLE"}}
		]}`,
	}
}

func TestClient_SyncProducts(t *testing.T) {
	transport := newCatalogTransport(catalogRoutes())
	policy := &stubRateLimit{}
	cfg := testConfig(t, transport)
	cfg.RateLimit = policy
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	products, err := client.SyncProducts(context.Background())
	if err != nil {
		t.Fatalf("sync products: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}

	subscription := products[0]
	if subscription.StoreProductID != "com.example.starfall.pro.monthly" {
		t.Fatalf("unexpected product id %q", subscription.StoreProductID)
	}
	if subscription.DisplayName != "Pro Monthly" || subscription.Description != "Unlocks everything" {
		t.Fatalf("expected the en-US localization, got %q / %q", subscription.DisplayName, subscription.Description)
	}
	if subscription.PriceMicros != 9_990_000 || subscription.Currency != "EUR" {
		t.Fatalf("unexpected price %d %s", subscription.PriceMicros, subscription.Currency)
	}
	if subscription.SubscriptionPeriod != "P1M" {
		t.Fatalf("unexpected period %q", subscription.SubscriptionPeriod)
	}
	if subscription.TrialPeriod != "P1W" {
		t.Fatalf("unexpected trial %q", subscription.TrialPeriod)
	}
	if subscription.ProductType != core.ProductTypeSubscription {
		t.Fatalf("unexpected product type %q", subscription.ProductType)
	}

	gems := products[1]
	if gems.StoreProductID != "com.example.starfall.gems100" || gems.ProductType != core.ProductTypeConsumable {
		t.Fatalf("unexpected consumable %+v", gems)
	}
	if gems.PriceMicros != 0 || gems.Currency != "USD" || gems.SubscriptionPeriod != "" {
		t.Fatalf("one-time purchases carry no price or period, got %+v", gems)
	}

	skin := products[2]
	if skin.StoreProductID != "com.example.starfall.skin.founder" || skin.ProductType != core.ProductTypeNonConsumable {
		t.Fatalf("unexpected non-consumable %+v", skin)
	}

	if got := transport.requests[0].Query["filter[bundleId]"]; got != "com.example.starfall" {
		t.Fatalf("expected bundle id filter on app lookup, got %q", got)
	}

	// Every walk request runs on the connect bucket with one shared token.
	for _, key := range policy.beforeKeys {
		if key.BucketKey != "connect_api" {
			t.Fatalf("expected connect_api bucket, got %q", key.BucketKey)
		}
	}
	firstAuth := transport.requests[0].Headers["Authorization"]
	for index, req := range transport.requests {
		if req.Headers["Authorization"] != firstAuth {
			t.Fatalf("request %d used a different token", index)
		}
	}

	bearer, ok := cutBearer(firstAuth)
	if !ok {
		t.Fatalf("expected bearer authorization, got %q", firstAuth)
	}
	claims := map[string]any{}
	if err := core.DecodeClaims(bearer, &claims); err != nil {
		t.Fatalf("decode bearer: %v", err)
	}
	if _, hasBundleID := claims["bid"]; hasBundleID {
		t.Fatalf("connect tokens must not carry the bid claim")
	}
	issued, _ := claims["iat"].(float64)
	expires, _ := claims["exp"].(float64)
	if expires-issued != 1200 {
		t.Fatalf("expected a 20 minute connect token, got %v seconds", expires-issued)
	}
}

func TestClient_SyncProducts_DegradedDetails(t *testing.T) {
	routes := catalogRoutes()
	delete(routes, connectBase+"/v1/subscriptions/sub-1/subscriptionLocalizations")
	delete(routes, connectBase+"/v1/subscriptions/sub-1/prices")
	delete(routes, connectBase+"/v1/subscriptions/sub-1")
	delete(routes, connectBase+"/v1/subscriptions/sub-1/introductoryOffers")

	client := newTestClient(t, newCatalogTransport(routes))

	products, err := client.SyncProducts(context.Background())
	if err != nil {
		t.Fatalf("sync products: %v", err)
	}

	subscription := products[0]
	if subscription.DisplayName != "Pro Monthly" {
		t.Fatalf("expected fallback to the subscription name, got %q", subscription.DisplayName)
	}
	if subscription.Description != "" {
		t.Fatalf("expected empty description, got %q", subscription.Description)
	}
	if subscription.PriceMicros != 0 || subscription.Currency != "USD" {
		t.Fatalf("expected zero USD fallback, got %d %s", subscription.PriceMicros, subscription.Currency)
	}
	if subscription.SubscriptionPeriod != "" || subscription.TrialPeriod != "" {
		t.Fatalf("expected no periods, got %q / %q", subscription.SubscriptionPeriod, subscription.TrialPeriod)
	}
}

func TestClient_SyncProducts_AppNotFound(t *testing.T) {
	routes := catalogRoutes()
	routes[connectBase+"/v1/apps"] = `{"data":[]}`

	client := newTestClient(t, newCatalogTransport(routes))

	_, err := client.SyncProducts(context.Background())
	if err == nil {
		t.Fatalf("expected lookup error")
	}
	if !strings.Contains(err.Error(), "bundle id") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClient_SyncProducts_ConnectUnavailable(t *testing.T) {
	transport := &stubTransport{
		respond: func(core.TransportRequest) (core.TransportResponse, error) {
			return core.TransportResponse{StatusCode: http.StatusServiceUnavailable}, nil
		},
	}
	client := newTestClient(t, transport)

	_, err := client.SyncProducts(context.Background())
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestISOPeriodMapping(t *testing.T) {
	cases := map[string]string{
		"THREE_DAYS":   "P3D",
		"ONE_WEEK":     "P1W",
		"TWO_WEEKS":    "P2W",
		"ONE_MONTH":    "P1M",
		"TWO_MONTHS":   "P2M",
		"THREE_MONTHS": "P3M",
		"SIX_MONTHS":   "P6M",
		"ONE_YEAR":     "P1Y",
		"P1W":          "P1W",
		"CUSTOM":       "CUSTOM",
	}
	for duration, want := range cases {
		if got := isoPeriod(duration); got != want {
			t.Fatalf("isoPeriod(%q) = %q, want %q", duration, got, want)
		}
	}
}
