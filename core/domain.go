package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidStore                    = errors.New("core: invalid store")
	ErrInvalidPlatform                 = errors.New("core: invalid platform")
	ErrInvalidDeliveryStatusTransition = errors.New("core: invalid delivery status transition")
	ErrAppNotFound                     = errors.New("core: app not found")
	ErrAPIKeyNotFound                  = errors.New("core: api key not found")
	ErrSubscriberNotFound              = errors.New("core: subscriber not found")
	ErrTransactionNotFound             = errors.New("core: transaction not found")
	ErrEndpointNotFound                = errors.New("core: webhook endpoint not found")
	ErrDeliveryNotFound                = errors.New("core: webhook delivery not found")
)

type Store string

const (
	StoreApple  Store = "apple"
	StoreGoogle Store = "google"
)

func ParseStore(value string) (Store, error) {
	switch Store(strings.TrimSpace(strings.ToLower(value))) {
	case StoreApple:
		return StoreApple, nil
	case StoreGoogle:
		return StoreGoogle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStore, value)
	}
}

func (s Store) Validate() error {
	_, err := ParseStore(string(s))
	return err
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) Validate() error {
	switch p {
	case PlatformIOS, PlatformAndroid:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, p)
	}
}

// DefaultStore maps a platform to the storefront that bills it.
func (p Platform) DefaultStore() Store {
	if p == PlatformAndroid {
		return StoreGoogle
	}
	return StoreApple
}

// Platform is the inverse of DefaultStore.
func (s Store) Platform() Platform {
	if s == StoreGoogle {
		return PlatformAndroid
	}
	return PlatformIOS
}

type TransactionStatus string

const (
	TransactionStatusActive       TransactionStatus = "active"
	TransactionStatusExpired      TransactionStatus = "expired"
	TransactionStatusRefunded     TransactionStatus = "refunded"
	TransactionStatusGracePeriod  TransactionStatus = "grace_period"
	TransactionStatusBillingRetry TransactionStatus = "billing_retry"
)

type EventKind string

const (
	EventKindInitialPurchase EventKind = "INITIAL_PURCHASE"
	EventKindRenewal         EventKind = "RENEWAL"
	EventKindExpiration      EventKind = "EXPIRATION"
	EventKindBillingIssue    EventKind = "BILLING_ISSUE_DETECTED"
	EventKindRefund          EventKind = "REFUND"
	EventKindCancellation    EventKind = "CANCELLATION"
	EventKindAccountHold     EventKind = "ACCOUNT_HOLD"
	EventKindGracePeriod     EventKind = "GRACE_PERIOD"
	EventKindRestarted       EventKind = "RESTARTED"
	EventKindUnknown         EventKind = "UNKNOWN"
)

// VerifiedTransaction is a point-in-time snapshot of a purchase as the
// storefront reported it. Once built it is never mutated.
type VerifiedTransaction struct {
	StoreTransactionID string            `json:"store_transaction_id"`
	ProductID          string            `json:"product_id"`
	PurchaseDate       time.Time         `json:"purchase_date"`
	ExpirationDate     *time.Time        `json:"expiration_date,omitempty"`
	Status             TransactionStatus `json:"status"`
	Store              Store             `json:"store"`
}

type TransactionEvent struct {
	Kind        EventKind           `json:"kind"`
	Transaction VerifiedTransaction `json:"transaction"`
}

// StoreNotification is the normalized form of a storefront server
// notification. PackageID carries the bundle id or package name lifted from
// the envelope so the owning app can be resolved; Events may be empty for
// well-formed notifications that carry no transaction payload.
type StoreNotification struct {
	PackageID string
	Events    []TransactionEvent
}

const (
	ProductTypeSubscription  = "subscription"
	ProductTypeConsumable    = "consumable"
	ProductTypeNonConsumable = "non_consumable"
)

// StoreProduct is one normalized catalog entry produced by a product sync.
type StoreProduct struct {
	StoreProductID     string
	DisplayName        string
	Description        string
	PriceMicros        int64
	Currency           string
	SubscriptionPeriod string
	TrialPeriod        string
	ProductType        string
}

type App struct {
	ID        string
	Name      string
	Platform  Platform
	BundleID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppleCredentials hold the App Store Server/Connect API key material issued
// in App Store Connect.
type AppleCredentials struct {
	IssuerID   string `json:"issuer_id"`
	KeyID      string `json:"key_id"`
	PrivateKey string `json:"private_key"`
	Sandbox    bool   `json:"sandbox,omitempty"`
}

// PlayCredentials mirror the fields of a Google service-account key file.
type PlayCredentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

type StoreCredentials struct {
	Apple *AppleCredentials `json:"apple,omitempty"`
	Play  *PlayCredentials  `json:"play,omitempty"`
}

func (c StoreCredentials) ForStore(store Store) bool {
	switch store {
	case StoreApple:
		return c.Apple != nil
	case StoreGoogle:
		return c.Play != nil
	default:
		return false
	}
}

type APIKey struct {
	ID        string
	AppID     string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

func (k APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

type Subscriber struct {
	ID        string
	AppID     string
	AppUserID string
	CreatedAt time.Time
}

type Transaction struct {
	ID                 string
	SubscriberID       string
	ProductID          string
	Store              Store
	StoreTransactionID string
	PurchaseDate       time.Time
	ExpirationDate     *time.Time
	Status             TransactionStatus
	RawReceipt         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Event is the persisted form of a TransactionEvent. SubscriberID is empty
// when the notification could not be matched to a known transaction; those
// records exist for observability and are excluded from endpoint fan-out.
type Event struct {
	ID           string
	SubscriberID string
	EventType    string
	Payload      []byte
	CreatedAt    time.Time
}

type Entitlement struct {
	ID          string
	AppID       string
	Name        string
	Description string
	CreatedAt   time.Time
}

type Product struct {
	ID                 string
	AppID              string
	StoreProductID     string
	ProductType        string
	DisplayName        string
	Description        string
	PriceMicros        int64
	Currency           string
	SubscriptionPeriod string
	TrialPeriod        string
	LastSyncedAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type WebhookEndpoint struct {
	ID        string
	AppID     string
	URL       string
	Secret    string
	Active    bool
	CreatedAt time.Time
}

func (e WebhookEndpoint) Validate() error {
	if strings.TrimSpace(e.AppID) == "" {
		return fmt.Errorf("core: webhook endpoint app id is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("core: webhook endpoint url %q is not an absolute http(s) url", e.URL)
	}
	return nil
}

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusDeadLetter DeliveryStatus = "dead_letter"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusDeadLetter
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	switch status := DeliveryStatus(strings.TrimSpace(strings.ToLower(value))); status {
	case DeliveryStatusPending, DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusDeadLetter:
		return status, nil
	default:
		return "", fmt.Errorf("core: invalid delivery status %q", value)
	}
}

type WebhookDelivery struct {
	ID            string
	EndpointID    string
	EventID       string
	Status        DeliveryStatus
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordAttempt counts one delivery attempt. Attempts only ever grows.
func (d *WebhookDelivery) RecordAttempt(now time.Time) {
	if d == nil {
		return
	}
	d.Attempts++
	at := now
	d.LastAttemptAt = &at
	d.UpdatedAt = now
}

func (d *WebhookDelivery) TransitionTo(status DeliveryStatus, now time.Time) error {
	if d == nil {
		return nil
	}
	if d.Status == status {
		if d.Status.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, d.Status, status)
		}
		d.UpdatedAt = now
		return nil
	}
	if !deliveryTransitionAllowed(d.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryStatusTransition, d.Status, status)
	}
	d.Status = status
	d.UpdatedAt = now
	if status.Terminal() {
		d.NextRetryAt = nil
	}
	if status == DeliveryStatusDelivered {
		d.LastError = ""
	}
	return nil
}

func deliveryTransitionAllowed(current, next DeliveryStatus) bool {
	allowed := map[DeliveryStatus]map[DeliveryStatus]struct{}{
		DeliveryStatusPending: {
			DeliveryStatusDelivered: {},
			DeliveryStatusFailed:    {},
		},
		DeliveryStatusFailed: {
			DeliveryStatusDelivered:  {},
			DeliveryStatusDeadLetter: {},
		},
		DeliveryStatusDelivered:  {},
		DeliveryStatusDeadLetter: {},
	}
	_, ok := allowed[current][next]
	return ok
}
