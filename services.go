package iap

import "github.com/goliatone/go-iap/core"

type Config = core.Config

type AppleConfig = core.AppleConfig
type PlayConfig = core.PlayConfig
type DeliveryConfig = core.DeliveryConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SecretProvider = core.SecretProvider
type Registry = core.Registry
type StoreClient = core.StoreClient
type AppStore = core.AppStore
type APIKeyStore = core.APIKeyStore
type SubscriberStore = core.SubscriberStore
type TransactionStore = core.TransactionStore
type EventStore = core.EventStore
type EntitlementStore = core.EntitlementStore
type ProductStore = core.ProductStore
type EndpointStore = core.EndpointStore
type DeliveryStore = core.DeliveryStore

type RegisterAppInput = core.RegisterAppInput
type SubmitReceiptInput = core.SubmitReceiptInput

type CreateEndpointInput = core.CreateEndpointInput

type NotificationInput = core.NotificationInput

type ListEventsInput = core.ListEventsInput
type ListDeliveriesInput = core.ListDeliveriesInput

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithTransport         = core.WithTransport
	WithRateLimitPolicy   = core.WithRateLimitPolicy
	WithRegistry          = core.WithRegistry
	WithStoreProvider     = core.WithStoreProvider
	WithAppStore          = core.WithAppStore
	WithAPIKeyStore       = core.WithAPIKeyStore
	WithSubscriberStore   = core.WithSubscriberStore
	WithTransactionStore  = core.WithTransactionStore
	WithEventStore        = core.WithEventStore
	WithEntitlementStore  = core.WithEntitlementStore
	WithProductStore      = core.WithProductStore
	WithEndpointStore     = core.WithEndpointStore
	WithDeliveryStore     = core.WithDeliveryStore
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
