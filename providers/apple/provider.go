package apple

import (
	"context"
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

const (
	// ServerAPIBaseURL is the production App Store Server API host.
	ServerAPIBaseURL = "https://api.storekit.itunes.apple.com"
	// ServerAPISandboxURL serves sandbox builds; selected when the
	// credentials carry the sandbox flag.
	ServerAPISandboxURL = "https://api.storekit-sandbox.itunes.apple.com"
	// ConnectAPIBaseURL is the App Store Connect API host used by catalog sync.
	ConnectAPIBaseURL = "https://api.appstoreconnect.apple.com"
)

// Apple throttles the Server API and the Connect API independently, so each
// keeps its own rate-limit bucket.
const (
	rateBucketServerAPI  = "server_api"
	rateBucketConnectAPI = "connect_api"
)

// Config assembles an App Store client for one app. The app's bundle id
// becomes the bid claim on Server API tokens and anchors the Connect
// catalog walk.
type Config struct {
	App         core.App
	Credentials core.AppleCredentials
	// BaseURL overrides the Server API host. Empty selects production or
	// sandbox from Credentials.Sandbox.
	BaseURL string
	// ConnectURL overrides the App Store Connect host.
	ConnectURL string
	Transport  core.TransportAdapter
	RateLimit  core.RateLimitPolicy
	Logger     core.Logger
	Now        func() time.Time
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    ServerAPIBaseURL,
		ConnectURL: ConnectAPIBaseURL,
	}
}

// Client talks to the App Store Server API for purchase verification and to
// the App Store Connect API for catalog sync. Signed payloads returned by
// Apple are decoded structurally; signatures are not verified.
type Client struct {
	app        core.App
	assertion  *auth.AppStoreAssertion
	baseURL    string
	connectURL string
	transport  core.TransportAdapter
	rateLimit  core.RateLimitPolicy
	logger     core.Logger
}

func New(cfg Config) (core.StoreClient, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
		if cfg.Credentials.Sandbox {
			cfg.BaseURL = ServerAPISandboxURL
		}
	}
	if strings.TrimSpace(cfg.ConnectURL) == "" {
		cfg.ConnectURL = defaults.ConnectURL
	}

	if strings.TrimSpace(cfg.Credentials.IssuerID) == "" {
		return nil, fmt.Errorf("providers/apple: issuer id is required")
	}
	if strings.TrimSpace(cfg.Credentials.KeyID) == "" {
		return nil, fmt.Errorf("providers/apple: key id is required")
	}
	if strings.TrimSpace(cfg.Credentials.PrivateKey) == "" {
		return nil, fmt.Errorf("providers/apple: private key is required")
	}
	if strings.TrimSpace(cfg.App.BundleID) == "" {
		return nil, fmt.Errorf("providers/apple: app bundle id is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("providers/apple: transport adapter is required")
	}

	assertion := auth.NewAppStoreAssertion(auth.AppStoreAssertionConfig{
		IssuerID:   cfg.Credentials.IssuerID,
		KeyID:      cfg.Credentials.KeyID,
		PrivateKey: cfg.Credentials.PrivateKey,
		BundleID:   cfg.App.BundleID,
		Now:        cfg.Now,
	})

	return &Client{
		app:        cfg.App,
		assertion:  assertion,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		connectURL: strings.TrimRight(strings.TrimSpace(cfg.ConnectURL), "/"),
		transport:  cfg.Transport,
		rateLimit:  cfg.RateLimit,
		logger:     cfg.Logger,
	}, nil
}

// Factory adapts New to the registry contract. Deps without apple
// credentials build a client good only for envelope decoding; every call
// that would reach Apple fails instead.
func Factory(deps core.StoreClientDeps) (core.StoreClient, error) {
	if deps.Credentials.Apple == nil {
		defaults := DefaultConfig()
		return &Client{
			app:        deps.App,
			baseURL:    defaults.BaseURL,
			connectURL: defaults.ConnectURL,
			transport:  deps.Transport,
			rateLimit:  deps.RateLimit,
			logger:     deps.Logger,
		}, nil
	}
	return New(Config{
		App:         deps.App,
		Credentials: *deps.Credentials.Apple,
		Transport:   deps.Transport,
		RateLimit:   deps.RateLimit,
		Logger:      deps.Logger,
		Now:         deps.Now,
	})
}

func (c *Client) Store() core.Store { return core.StoreApple }

// VerifyPurchase fetches the transaction endpoint for one transaction id and
// decodes the signed transaction Apple returns. The Server API reports these
// snapshots as active; lifecycle changes arrive through notifications.
func (c *Client) VerifyPurchase(ctx context.Context, receipt string) (core.VerifiedTransaction, error) {
	transactionID := strings.TrimSpace(receipt)
	if transactionID == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("providers/apple: transaction id is required")
	}

	resp, err := c.serverGet(ctx, "/inApps/v1/transactions/"+url.PathEscape(transactionID))
	if err != nil {
		return core.VerifiedTransaction{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: server api returned status %d", core.ErrStoreUnavailable, resp.StatusCode)
	}

	var payload struct {
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: transaction response: %v", core.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(payload.SignedTransactionInfo) == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: response missing signedTransactionInfo", core.ErrMalformedResponse)
	}
	return decodeSignedTransaction(payload.SignedTransactionInfo)
}

// GetSubscriptionStatus reports the current snapshot for a subscription. The
// Server API serves both concerns from the transaction endpoint, so this
// delegates to VerifyPurchase.
func (c *Client) GetSubscriptionStatus(ctx context.Context, storeTransactionID string) (core.VerifiedTransaction, error) {
	return c.VerifyPurchase(ctx, storeTransactionID)
}

// ProcessNotification unwraps an App Store server notification. The body
// carries a signedPayload whose claims name the notification type and, for
// most types, a nested signed transaction. Notifications without a
// transaction payload normalize to zero events. No network access happens
// here.
func (c *Client) ProcessNotification(_ context.Context, body []byte) (core.StoreNotification, error) {
	claims, err := decodeNotificationBody(body)
	if err != nil {
		return core.StoreNotification{}, err
	}

	notification := core.StoreNotification{PackageID: strings.TrimSpace(claims.Data.BundleID)}
	signed := strings.TrimSpace(claims.Data.SignedTransactionInfo)
	if signed == "" {
		return notification, nil
	}

	tx, err := decodeSignedTransaction(signed)
	if err != nil {
		return core.StoreNotification{}, err
	}
	notification.Events = []core.TransactionEvent{{
		Kind:        mapNotificationType(claims.NotificationType),
		Transaction: tx,
	}}
	return notification, nil
}

// PeekPackageID lifts the bundle id out of a notification body without
// touching the network, so the owning app can be resolved before full
// processing.
func (c *Client) PeekPackageID(body []byte) (string, error) {
	claims, err := decodeNotificationBody(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(claims.Data.BundleID), nil
}

type notificationClaims struct {
	NotificationType string `json:"notificationType"`
	Data             struct {
		BundleID              string `json:"bundleId"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	} `json:"data"`
}

func decodeNotificationBody(body []byte) (notificationClaims, error) {
	var envelope struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return notificationClaims{}, fmt.Errorf("%w: notification body: %v", core.ErrMalformedToken, err)
	}
	if strings.TrimSpace(envelope.SignedPayload) == "" {
		return notificationClaims{}, fmt.Errorf("%w: notification missing signedPayload", core.ErrMalformedToken)
	}
	var claims notificationClaims
	if err := core.DecodeClaims(envelope.SignedPayload, &claims); err != nil {
		return notificationClaims{}, err
	}
	return claims, nil
}

type signedTransactionClaims struct {
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
	PurchaseDate  int64  `json:"purchaseDate"`
	ExpiresDate   int64  `json:"expiresDate"`
}

// decodeSignedTransaction lifts a signed transaction's claims into the
// normalized snapshot. Dates are millisecond epochs in Apple's claims.
func decodeSignedTransaction(signed string) (core.VerifiedTransaction, error) {
	var claims signedTransactionClaims
	if err := core.DecodeClaims(signed, &claims); err != nil {
		return core.VerifiedTransaction{}, err
	}
	if strings.TrimSpace(claims.TransactionID) == "" || strings.TrimSpace(claims.ProductID) == "" || claims.PurchaseDate == 0 {
		return core.VerifiedTransaction{}, fmt.Errorf("%w: signed transaction missing transactionId, productId or purchaseDate", core.ErrMalformedResponse)
	}

	tx := core.VerifiedTransaction{
		StoreTransactionID: strings.TrimSpace(claims.TransactionID),
		ProductID:          strings.TrimSpace(claims.ProductID),
		PurchaseDate:       time.UnixMilli(claims.PurchaseDate).UTC(),
		Status:             core.TransactionStatusActive,
		Store:              core.StoreApple,
	}
	if claims.ExpiresDate > 0 {
		expires := time.UnixMilli(claims.ExpiresDate).UTC()
		tx.ExpirationDate = &expires
	}
	return tx, nil
}

// mapNotificationType folds the App Store notification taxonomy into the
// normalized event kinds. Types without a mapping pass through verbatim so
// consumers still see taxonomy Apple adds over time.
func mapNotificationType(vendorType string) core.EventKind {
	trimmed := strings.TrimSpace(vendorType)
	switch trimmed {
	case "DID_RENEW":
		return core.EventKindRenewal
	case "EXPIRED":
		return core.EventKindExpiration
	case "DID_FAIL_TO_RENEW":
		return core.EventKindBillingIssue
	case "REFUND":
		return core.EventKindRefund
	case "SUBSCRIBED", "INITIAL_BUY":
		return core.EventKindInitialPurchase
	case "DID_CHANGE_RENEWAL_STATUS":
		return core.EventKindCancellation
	case "":
		return core.EventKindUnknown
	default:
		return core.EventKind(trimmed)
	}
}

func (c *Client) serverGet(ctx context.Context, path string) (core.TransportResponse, error) {
	if c.assertion == nil {
		return core.TransportResponse{}, fmt.Errorf("providers/apple: store credentials are required")
	}
	token, err := c.assertion.SignAPIToken()
	if err != nil {
		return core.TransportResponse{}, err
	}
	return c.vendorGet(ctx, rateBucketServerAPI, token, c.baseURL+path, nil)
}

func (c *Client) connectGet(ctx context.Context, token, rawURL string, query map[string]string) (core.TransportResponse, error) {
	return c.vendorGet(ctx, rateBucketConnectAPI, token, rawURL, query)
}

func (c *Client) vendorGet(ctx context.Context, bucket, token, rawURL string, query map[string]string) (core.TransportResponse, error) {
	key := core.RateLimitKey{
		StoreID:   string(core.StoreApple),
		ScopeType: "app",
		ScopeID:   c.app.ID,
		BucketKey: bucket,
	}
	if c.rateLimit != nil {
		if err := c.rateLimit.BeforeCall(ctx, key); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return core.TransportResponse{}, throttled.ToServiceError()
			}
			return core.TransportResponse{}, err
		}
	}

	resp, err := c.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Query:   query,
	})
	if err != nil {
		return core.TransportResponse{}, err
	}

	if c.rateLimit != nil {
		meta := core.StoreResponseMeta{StatusCode: resp.StatusCode, Headers: resp.Headers}
		if err := c.rateLimit.AfterCall(ctx, key, meta); err != nil && c.logger != nil {
			c.logger.Warn("rate limit state update failed",
				"store", string(core.StoreApple),
				"bucket", bucket,
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
