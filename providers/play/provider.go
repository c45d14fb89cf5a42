package play

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-iap/auth"
	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-iap/ratelimit"
)

// PublisherAPIBaseURL is the Google Play Developer API host.
const PublisherAPIBaseURL = "https://androidpublisher.googleapis.com"

const rateBucketPublisherAPI = "publisher_api"

// Config assembles a Play client for one app. The app's bundle id doubles as
// the package name in publisher API paths.
type Config struct {
	App         core.App
	Credentials core.PlayCredentials
	// BaseURL overrides the publisher API host.
	BaseURL   string
	Transport core.TransportAdapter
	RateLimit core.RateLimitPolicy
	Logger    core.Logger
	Now       func() time.Time
}

func DefaultConfig() Config {
	return Config{BaseURL: PublisherAPIBaseURL}
}

// Client talks to the Play Developer API. Every call exchanges a fresh
// service-account assertion for a bearer token; nothing is cached between
// calls.
type Client struct {
	app         core.App
	packageName string
	tokenSource *auth.PlayTokenSource
	baseURL     string
	transport   core.TransportAdapter
	rateLimit   core.RateLimitPolicy
	logger      core.Logger
}

func New(cfg Config) (core.StoreClient, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}

	if strings.TrimSpace(cfg.Credentials.ClientEmail) == "" {
		return nil, fmt.Errorf("providers/play: client email is required")
	}
	if strings.TrimSpace(cfg.Credentials.PrivateKey) == "" {
		return nil, fmt.Errorf("providers/play: private key is required")
	}
	if strings.TrimSpace(cfg.Credentials.TokenURI) == "" {
		return nil, fmt.Errorf("providers/play: token uri is required")
	}
	if strings.TrimSpace(cfg.App.BundleID) == "" {
		return nil, fmt.Errorf("providers/play: app package name is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("providers/play: transport adapter is required")
	}

	tokenSource := auth.NewPlayTokenSource(auth.PlayTokenSourceConfig{
		ClientEmail: cfg.Credentials.ClientEmail,
		PrivateKey:  cfg.Credentials.PrivateKey,
		TokenURI:    cfg.Credentials.TokenURI,
		Transport:   cfg.Transport,
		Now:         cfg.Now,
	})

	return &Client{
		app:         cfg.App,
		packageName: strings.TrimSpace(cfg.App.BundleID),
		tokenSource: tokenSource,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		transport:   cfg.Transport,
		rateLimit:   cfg.RateLimit,
		logger:      cfg.Logger,
	}, nil
}

// Factory adapts New to the registry contract. Deps without play credentials
// build a client good only for envelope decoding; every call that would reach
// Google fails instead.
func Factory(deps core.StoreClientDeps) (core.StoreClient, error) {
	if deps.Credentials.Play == nil {
		return &Client{
			app:         deps.App,
			packageName: strings.TrimSpace(deps.App.BundleID),
			baseURL:     PublisherAPIBaseURL,
			transport:   deps.Transport,
			rateLimit:   deps.RateLimit,
			logger:      deps.Logger,
		}, nil
	}
	return New(Config{
		App:         deps.App,
		Credentials: *deps.Credentials.Play,
		Transport:   deps.Transport,
		RateLimit:   deps.RateLimit,
		Logger:      deps.Logger,
		Now:         deps.Now,
	})
}

func (c *Client) Store() core.Store { return core.StoreGoogle }

type subscriptionResource struct {
	StartTime         string `json:"startTime"`
	SubscriptionState string `json:"subscriptionState"`
	LineItems         []struct {
		ProductID  string `json:"productId"`
		ExpiryTime string `json:"expiryTime"`
	} `json:"lineItems"`
}

// VerifyPurchase resolves a purchase token against the subscriptionsv2
// endpoint. The token itself is the store transaction id; Play never issues a
// separate one.
func (c *Client) VerifyPurchase(ctx context.Context, receipt string) (core.VerifiedTransaction, error) {
	purchaseToken := strings.TrimSpace(receipt)
	if purchaseToken == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("providers/play: purchase token is required")
	}

	path := "/androidpublisher/v3/applications/" + url.PathEscape(c.packageName) +
		"/purchases/subscriptionsv2/tokens/" + url.PathEscape(purchaseToken)
	resp, err := c.publisherGet(ctx, path)
	if err != nil {
		return core.VerifiedTransaction{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: publisher api returned status %d", core.ErrStoreUnavailable, resp.StatusCode)
	}

	var payload subscriptionResource
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: subscription response: %v", core.ErrMalformedResponse, err)
	}
	if len(payload.LineItems) == 0 || strings.TrimSpace(payload.LineItems[0].ProductID) == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: subscription response missing lineItems", core.ErrMalformedResponse)
	}
	if strings.TrimSpace(payload.StartTime) == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: subscription response missing startTime", core.ErrMalformedResponse)
	}

	startTime, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.StartTime))
	if err != nil {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: startTime: %v", core.ErrMalformedResponse, err)
	}

	tx := core.VerifiedTransaction{
		StoreTransactionID: purchaseToken,
		ProductID:          strings.TrimSpace(payload.LineItems[0].ProductID),
		PurchaseDate:       startTime.UTC(),
		Status:             mapSubscriptionState(payload.SubscriptionState),
		Store:              core.StoreGoogle,
	}
	if expiry := strings.TrimSpace(payload.LineItems[0].ExpiryTime); expiry != "" {
		expiryTime, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			return core.VerifiedTransaction{}, fmt.Errorf("%w: expiryTime: %v", core.ErrMalformedResponse, err)
		}
		utc := expiryTime.UTC()
		tx.ExpirationDate = &utc
	}
	return tx, nil
}

// GetSubscriptionStatus delegates to VerifyPurchase; the subscriptionsv2
// endpoint serves both concerns.
func (c *Client) GetSubscriptionStatus(ctx context.Context, storeTransactionID string) (core.VerifiedTransaction, error) {
	return c.VerifyPurchase(ctx, storeTransactionID)
}

// ProcessNotification unwraps a real-time developer notification, arriving
// either inside a Pub/Sub push envelope or bare. The notification carries
// only a purchase token reference, so the snapshot is fetched with a
// synchronous VerifyPurchase before the event is emitted; parse and verify
// succeed or fail as one unit.
func (c *Client) ProcessNotification(ctx context.Context, body []byte) (core.StoreNotification, error) {
	notification, err := decodeDeveloperNotification(body)
	if err != nil {
		return core.StoreNotification{}, err
	}

	out := core.StoreNotification{PackageID: strings.TrimSpace(notification.PackageName)}
	if notification.SubscriptionNotification == nil {
		// Test and one-time purchase notifications carry no subscription
		// payload; they normalize to zero events.
		return out, nil
	}

	purchaseToken := strings.TrimSpace(notification.SubscriptionNotification.PurchaseToken)
	if purchaseToken == "" {
		return core.StoreNotification{}, fmt.Errorf("%w: subscription notification missing purchaseToken", core.ErrMalformedResponse)
	}

	tx, err := c.VerifyPurchase(ctx, purchaseToken)
	if err != nil {
		return core.StoreNotification{}, err
	}

	out.Events = []core.TransactionEvent{{
		Kind:        mapNotificationType(notification.SubscriptionNotification.NotificationType),
		Transaction: tx,
	}}
	return out, nil
}

// PeekPackageID lifts the package name out of a notification body without
// exchanging tokens or calling the publisher API.
func (c *Client) PeekPackageID(body []byte) (string, error) {
	notification, err := decodeDeveloperNotification(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(notification.PackageName), nil
}

// SyncProducts reports an empty catalog. The publisher API surface wired here
// has no listing comparable to the Connect walk; Play catalog rows are
// managed through the catalog service directly.
func (c *Client) SyncProducts(context.Context) ([]core.StoreProduct, error) {
	return []core.StoreProduct{}, nil
}

type developerNotification struct {
	Version                  string                    `json:"version"`
	PackageName              string                    `json:"packageName"`
	EventTimeMillis          string                    `json:"eventTimeMillis"`
	SubscriptionNotification *subscriptionNotification `json:"subscriptionNotification"`
}

type subscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

// decodeDeveloperNotification accepts either the Pub/Sub push envelope, whose
// message.data field carries the notification as standard base64, or the bare
// notification body.
func decodeDeveloperNotification(body []byte) (developerNotification, error) {
	var envelope struct {
		Message struct {
			Data string `json:"data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return developerNotification{}, fmt.Errorf("%w: notification body: %v", core.ErrMalformedToken, err)
	}

	payload := body
	if data := strings.TrimSpace(envelope.Message.Data); data != "" {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return developerNotification{}, fmt.Errorf("%w: envelope data: %v", core.ErrMalformedToken, err)
		}
		payload = decoded
	}

	var notification developerNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return developerNotification{}, fmt.Errorf("%w: developer notification: %v", core.ErrMalformedToken, err)
	}
	return notification, nil
}

// mapSubscriptionState folds Play subscription states into the internal
// status. Unrecognized states, including ones Play added after this table
// (paused, pending), read as active.
func mapSubscriptionState(state string) core.TransactionStatus {
	switch strings.TrimSpace(state) {
	case "SUBSCRIPTION_STATE_ACTIVE":
		return core.TransactionStatusActive
	case "SUBSCRIPTION_STATE_EXPIRED":
		return core.TransactionStatusExpired
	case "SUBSCRIPTION_STATE_GRACE_PERIOD":
		return core.TransactionStatusGracePeriod
	case "SUBSCRIPTION_STATE_ON_HOLD":
		return core.TransactionStatusBillingRetry
	default:
		return core.TransactionStatusActive
	}
}

// mapNotificationType folds the integer developer notification codes into the
// normalized event kinds. Code 1 (recovery from a billing problem) has no
// slot in the core constants and passes through verbatim.
func mapNotificationType(notificationType int) core.EventKind {
	switch notificationType {
	case 1:
		return core.EventKind("SUBSCRIPTION_RECOVERED")
	case 2:
		return core.EventKindRenewal
	case 3:
		return core.EventKindCancellation
	case 4:
		return core.EventKindInitialPurchase
	case 5:
		return core.EventKindAccountHold
	case 6:
		return core.EventKindGracePeriod
	case 7:
		return core.EventKindRestarted
	case 12:
		return core.EventKindRefund
	case 13:
		return core.EventKindExpiration
	default:
		return core.EventKindUnknown
	}
}

func (c *Client) publisherGet(ctx context.Context, path string) (core.TransportResponse, error) {
	key := core.RateLimitKey{
		StoreID:   string(core.StoreGoogle),
		ScopeType: "app",
		ScopeID:   c.app.ID,
		BucketKey: rateBucketPublisherAPI,
	}
	// Throttle check first; the token exchange is its own round trip.
	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return core.TransportResponse{}, throttled.ToServiceError()
			}
			return core.TransportResponse{}, err
		}
	}

	if c.tokenSource == nil {
		return core.TransportResponse{}, fmt.Errorf("providers/play: store credentials are required")
	}
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return core.TransportResponse{}, err
	}

	resp, err := c.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     c.baseURL + path,
		Headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return core.TransportResponse{}, err
	}

	if c.rateLimit != nil {
		meta := core.StoreResponseMeta{StatusCode: resp.StatusCode, Headers: resp.Headers}
		if err := c.rateLimit.AfterCall(ctx, key, meta); err != nil && c.logger != nil {
			c.logger.Warn("rate limit state update failed",
				"store", string(core.StoreGoogle),
				"bucket", rateBucketPublisherAPI,
				"error", err.Error(),
			)
		}
	}
	return resp, nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

var (
	_ core.StoreClient        = (*Client)(nil)
	_ core.StoreClientFactory = Factory
)
