package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type RegisterAppInput struct {
	Name     string
	Platform Platform
	BundleID string
}

type SubmitReceiptInput struct {
	AppID       string
	AppUserID   string
	Store       Store
	ReceiptData string
	ProductID   string
}

type CreateEntitlementInput struct {
	Name        string
	Description string
}

type CreateProductInput struct {
	StoreProductID string
	ProductType    string
	DisplayName    string
	EntitlementIDs []string
}

type CreateEndpointInput struct {
	AppID string
	URL   string
}

// NotificationInput is one raw storefront notification. AppID is optional;
// when empty the owning app is resolved from the package id carried by the
// payload envelope.
type NotificationInput struct {
	Store Store
	AppID string
	Body  []byte
}

type ReconcileResult struct {
	AppID    string
	Events   []TransactionEvent
	Recorded int
	Enqueued int
}

type SubscriberInfo struct {
	Subscriber         Subscriber
	ActiveEntitlements []Entitlement
	Transactions       []Transaction
}

type CatalogSyncResult struct {
	Synced     int
	ProductIDs []string
}

type ListEventsInput struct {
	Since *time.Time
	Limit int
}

type ListDeliveriesInput struct {
	Status DeliveryStatus
	Limit  int
}

// CreatedAPIKey carries the plaintext token exactly once, at creation time.
// Only the hash is ever persisted.
type CreatedAPIKey struct {
	APIKey
	Token string
}

type AppStore interface {
	Create(ctx context.Context, in RegisterAppInput) (App, error)
	Get(ctx context.Context, id string) (App, error)
	GetByBundleID(ctx context.Context, platform Platform, bundleID string) (App, error)
	List(ctx context.Context) ([]App, error)
	SaveCredentials(ctx context.Context, appID string, ciphertext []byte) error
	GetCredentials(ctx context.Context, appID string) ([]byte, error)
}

type APIKeyStore interface {
	Create(ctx context.Context, key APIKey) (APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}

type SubscriberStore interface {
	Upsert(ctx context.Context, appID, appUserID string) (Subscriber, error)
	Get(ctx context.Context, appID, appUserID string) (Subscriber, error)
	GetByID(ctx context.Context, id string) (Subscriber, error)
}

type TransactionStore interface {
	Upsert(ctx context.Context, tx Transaction) (Transaction, error)
	GetByStoreTransactionID(ctx context.Context, store Store, storeTransactionID string) (Transaction, error)
	ListBySubscriber(ctx context.Context, subscriberID string) ([]Transaction, error)
}

type EventStore interface {
	Append(ctx context.Context, event Event) (Event, error)
	Get(ctx context.Context, id string) (Event, error)
	List(ctx context.Context, in ListEventsInput) ([]Event, error)
}

type EntitlementStore interface {
	Create(ctx context.Context, entitlement Entitlement) (Entitlement, error)
	ListByApp(ctx context.Context, appID string) ([]Entitlement, error)
	ListActiveBySubscriber(ctx context.Context, subscriberID string) ([]Entitlement, error)
}

type ProductStore interface {
	Create(ctx context.Context, product Product, entitlementIDs []string) (Product, error)
	ListByApp(ctx context.Context, appID string) ([]Product, error)
	UpsertSynced(ctx context.Context, appID string, products []StoreProduct, now time.Time) (int, error)
}

type EndpointStore interface {
	Create(ctx context.Context, endpoint WebhookEndpoint) (WebhookEndpoint, error)
	Get(ctx context.Context, id string) (WebhookEndpoint, error)
	ListByApp(ctx context.Context, appID string) ([]WebhookEndpoint, error)
	ListActiveByApp(ctx context.Context, appID string) ([]WebhookEndpoint, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ClaimedDelivery is a due delivery joined with everything one dispatch
// attempt needs: the target url, the shared secret, and the stored payload.
type ClaimedDelivery struct {
	Delivery WebhookDelivery
	URL      string
	Secret   string
	Payload  []byte
}

type DeliveryStore interface {
	Enqueue(ctx context.Context, deliveries []WebhookDelivery) error
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]ClaimedDelivery, error)
	MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, cause string, nextRetryAt time.Time, at time.Time) error
	MarkDeadLetter(ctx context.Context, id string, attempts int, cause string, at time.Time) error
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	List(ctx context.Context, in ListDeliveriesInput) ([]WebhookDelivery, error)
}

type StoreProvider interface {
	AppStore() AppStore
	APIKeyStore() APIKeyStore
	SubscriberStore() SubscriberStore
	TransactionStore() TransactionStore
	EventStore() EventStore
	EntitlementStore() EntitlementStore
	ProductStore() ProductStore
	EndpointStore() EndpointStore
	DeliveryStore() DeliveryStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// StoreClient is the storefront capability surface. One implementation per
// vendor; instances are built per app from its stored credentials and are
// never shared across apps.
type StoreClient interface {
	Store() Store
	VerifyPurchase(ctx context.Context, receipt string) (VerifiedTransaction, error)
	GetSubscriptionStatus(ctx context.Context, storeTransactionID string) (VerifiedTransaction, error)
	ProcessNotification(ctx context.Context, body []byte) (StoreNotification, error)
	// PeekPackageID lifts the bundle id or package name from a raw
	// notification body without touching credentials or the network, so the
	// owning app can be resolved before a full client is assembled.
	PeekPackageID(body []byte) (string, error)
	SyncProducts(ctx context.Context) ([]StoreProduct, error)
}

// StoreClientDeps is everything a factory needs to assemble a vendor client
// for one app.
type StoreClientDeps struct {
	App         App
	Credentials StoreCredentials
	Transport   TransportAdapter
	RateLimit   RateLimitPolicy
	Logger      Logger
	Now         func() time.Time
}

type StoreClientFactory func(deps StoreClientDeps) (StoreClient, error)

type Registry interface {
	Register(store Store, factory StoreClientFactory) error
	Get(store Store) (StoreClientFactory, bool)
	Stores() []Store
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type RateLimitKey struct {
	StoreID   string
	ScopeType string
	ScopeID   string
	BucketKey string
}

type StoreResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res StoreResponseMeta) error
}

type InboundRequest struct {
	Store    string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (claimID string, accepted bool, err error)
	Complete(claimID string)
	Fail(claimID string, cause error, retryAt time.Time)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// BillingService is the full operation surface the command/query layers and
// the facade compose over.
type BillingService interface {
	RegisterApp(ctx context.Context, in RegisterAppInput) (App, error)
	GetApp(ctx context.Context, id string) (App, error)
	ListApps(ctx context.Context) ([]App, error)
	SaveStoreCredentials(ctx context.Context, appID string, creds StoreCredentials) error
	DescribeStoreCredentials(ctx context.Context, appID string) (map[string]any, error)
	CreateAPIKey(ctx context.Context, appID string) (CreatedAPIKey, error)
	AuthenticateAPIKey(ctx context.Context, token string) (App, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
	SubmitReceipt(ctx context.Context, in SubmitReceiptInput) (Transaction, error)
	GetSubscriber(ctx context.Context, appID, appUserID string) (SubscriberInfo, error)
	CreateEntitlement(ctx context.Context, appID string, in CreateEntitlementInput) (Entitlement, error)
	ListEntitlements(ctx context.Context, appID string) ([]Entitlement, error)
	CreateProduct(ctx context.Context, appID string, in CreateProductInput) (Product, error)
	ListProducts(ctx context.Context, appID string) ([]Product, error)
	SyncProducts(ctx context.Context, appID string) (CatalogSyncResult, error)
	CreateWebhookEndpoint(ctx context.Context, in CreateEndpointInput) (WebhookEndpoint, error)
	ListWebhookEndpoints(ctx context.Context, appID string) ([]WebhookEndpoint, error)
	DisableWebhookEndpoint(ctx context.Context, endpointID string) error
	ReconcileNotification(ctx context.Context, in NotificationInput) (ReconcileResult, error)
	ListEvents(ctx context.Context, in ListEventsInput) ([]Event, error)
	ListDeliveries(ctx context.Context, in ListDeliveriesInput) ([]WebhookDelivery, error)
}
