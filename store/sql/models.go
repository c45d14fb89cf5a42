package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type appRecord struct {
	bun.BaseModel `bun:"table:iap_apps,alias:a"`

	ID                    string    `bun:"id,pk"`
	Name                  string    `bun:"name,notnull"`
	Platform              string    `bun:"platform,notnull"`
	BundleID              string    `bun:"bundle_id,notnull"`
	CredentialsCiphertext []byte    `bun:"credentials_ciphertext"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type apiKeyRecord struct {
	bun.BaseModel `bun:"table:iap_api_keys,alias:ak"`

	ID        string     `bun:"id,pk"`
	AppID     string     `bun:"app_id,notnull"`
	KeyHash   string     `bun:"key_hash,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	RevokedAt *time.Time `bun:"revoked_at,nullzero"`
}

type subscriberRecord struct {
	bun.BaseModel `bun:"table:iap_subscribers,alias:sub"`

	ID        string    `bun:"id,pk"`
	AppID     string    `bun:"app_id,notnull"`
	AppUserID string    `bun:"app_user_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type transactionRecord struct {
	bun.BaseModel `bun:"table:iap_transactions,alias:t"`

	ID                 string     `bun:"id,pk"`
	SubscriberID       string     `bun:"subscriber_id,notnull"`
	ProductID          string     `bun:"product_id"`
	Store              string     `bun:"store,notnull"`
	StoreTransactionID string     `bun:"store_transaction_id,notnull"`
	PurchaseDate       time.Time  `bun:"purchase_date,nullzero,notnull"`
	ExpirationDate     *time.Time `bun:"expiration_date,nullzero"`
	Status             string     `bun:"status,notnull"`
	RawReceipt         string     `bun:"raw_receipt"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// eventRecord rows with a NULL subscriber_id are notifications that matched
// no known transaction; they are kept for inspection but never fanned out.
type eventRecord struct {
	bun.BaseModel `bun:"table:iap_events,alias:ev"`

	ID           string    `bun:"id,pk"`
	SubscriberID *string   `bun:"subscriber_id"`
	EventType    string    `bun:"event_type,notnull"`
	Payload      []byte    `bun:"payload"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type entitlementRecord struct {
	bun.BaseModel `bun:"table:iap_entitlements,alias:ent"`

	ID          string    `bun:"id,pk"`
	AppID       string    `bun:"app_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:iap_products,alias:p"`

	ID                 string     `bun:"id,pk"`
	AppID              string     `bun:"app_id,notnull"`
	StoreProductID     string     `bun:"store_product_id,notnull"`
	ProductType        string     `bun:"product_type,notnull"`
	DisplayName        string     `bun:"display_name"`
	Description        string     `bun:"description"`
	PriceMicros        int64      `bun:"price_micros,notnull"`
	Currency           string     `bun:"currency"`
	SubscriptionPeriod string     `bun:"subscription_period"`
	TrialPeriod        string     `bun:"trial_period"`
	LastSyncedAt       *time.Time `bun:"last_synced_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productEntitlementRecord struct {
	bun.BaseModel `bun:"table:iap_product_entitlements,alias:pe"`

	ID            string    `bun:"id,pk"`
	ProductID     string    `bun:"product_id,notnull"`
	EntitlementID string    `bun:"entitlement_id,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEndpointRecord struct {
	bun.BaseModel `bun:"table:iap_webhook_endpoints,alias:we"`

	ID        string    `bun:"id,pk"`
	AppID     string    `bun:"app_id,notnull"`
	URL       string    `bun:"url,notnull"`
	Secret    string    `bun:"secret,notnull"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// webhookDeliveryRecord.ClaimedAt is the dispatcher lease marker: a claimed
// row is invisible to ClaimDue until the lease expires or a Mark* clears it.
type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:iap_webhook_deliveries,alias:wd"`

	ID            string     `bun:"id,pk"`
	EndpointID    string     `bun:"endpoint_id,notnull"`
	EventID       string     `bun:"event_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastAttemptAt *time.Time `bun:"last_attempt_at,nullzero"`
	LastError     string     `bun:"last_error"`
	NextRetryAt   *time.Time `bun:"next_retry_at,nullzero"`
	ClaimedAt     *time.Time `bun:"claimed_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:iap_rate_limit_states,alias:rls"`

	ID                string         `bun:"id,pk"`
	StoreID           string         `bun:"store_id,notnull"`
	ScopeType         string         `bun:"scope_type,notnull"`
	ScopeID           string         `bun:"scope_id,notnull"`
	BucketKey         string         `bun:"bucket_key,notnull"`
	Limit             int            `bun:"limit_value,notnull"`
	Remaining         int            `bun:"remaining,notnull"`
	ResetAt           *time.Time     `bun:"reset_at,nullzero"`
	RetryAfterSeconds *int           `bun:"retry_after_seconds,nullzero"`
	ThrottledUntil    *time.Time     `bun:"throttled_until,nullzero"`
	LastStatus        int            `bun:"last_status,notnull"`
	Attempts          int            `bun:"attempts,notnull"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
