package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the billing facade. It owns app registration, receipt intake,
// notification reconciliation, catalog sync, and the webhook delivery queue.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	transport         TransportAdapter
	rateLimitPolicy   RateLimitPolicy
	registry          Registry
	appStore          AppStore
	apiKeyStore       APIKeyStore
	subscriberStore   SubscriberStore
	transactionStore  TransactionStore
	eventStore        EventStore
	entitlementStore  EntitlementStore
	productStore      ProductStore
	endpointStore     EndpointStore
	deliveryStore     DeliveryStore
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Transport         TransportAdapter
	RateLimitPolicy   RateLimitPolicy
	Registry          Registry
	AppStore          AppStore
	APIKeyStore       APIKeyStore
	SubscriberStore   SubscriberStore
	TransactionStore  TransactionStore
	EventStore        EventStore
	EntitlementStore  EntitlementStore
	ProductStore      ProductStore
	EndpointStore     EndpointStore
	DeliveryStore     DeliveryStore
	Now               func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("iap", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("iap"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewStoreClientRegistry()
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	stores := builder.stores
	if stores == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
	}
	if stores != nil {
		if builder.appStore == nil {
			builder.appStore = stores.AppStore()
		}
		if builder.apiKeyStore == nil {
			builder.apiKeyStore = stores.APIKeyStore()
		}
		if builder.subscriberStore == nil {
			builder.subscriberStore = stores.SubscriberStore()
		}
		if builder.transactionStore == nil {
			builder.transactionStore = stores.TransactionStore()
		}
		if builder.eventStore == nil {
			builder.eventStore = stores.EventStore()
		}
		if builder.entitlementStore == nil {
			builder.entitlementStore = stores.EntitlementStore()
		}
		if builder.productStore == nil {
			builder.productStore = stores.ProductStore()
		}
		if builder.endpointStore == nil {
			builder.endpointStore = stores.EndpointStore()
		}
		if builder.deliveryStore == nil {
			builder.deliveryStore = stores.DeliveryStore()
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		transport:         builder.transport,
		rateLimitPolicy:   builder.rateLimitPolicy,
		registry:          builder.registry,
		appStore:          builder.appStore,
		apiKeyStore:       builder.apiKeyStore,
		subscriberStore:   builder.subscriberStore,
		transactionStore:  builder.transactionStore,
		eventStore:        builder.eventStore,
		entitlementStore:  builder.entitlementStore,
		productStore:      builder.productStore,
		endpointStore:     builder.endpointStore,
		deliveryStore:     builder.deliveryStore,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Transport:         s.transport,
		RateLimitPolicy:   s.rateLimitPolicy,
		Registry:          s.registry,
		AppStore:          s.appStore,
		APIKeyStore:       s.apiKeyStore,
		SubscriberStore:   s.subscriberStore,
		TransactionStore:  s.transactionStore,
		EventStore:        s.eventStore,
		EntitlementStore:  s.entitlementStore,
		ProductStore:      s.productStore,
		EndpointStore:     s.endpointStore,
		DeliveryStore:     s.deliveryStore,
		Now:               s.now,
	}
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) resolveStoreFactory(store Store) (StoreClientFactory, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	if err := store.Validate(); err != nil {
		return nil, s.mapError(err)
	}
	factory, ok := s.registry.Get(store)
	if ok {
		return factory, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("store %q is not registered", store),
		goerrors.CategoryNotFound,
	).WithTextCode("IAP_STORE_NOT_REGISTERED")
	return nil, wrapped.WithMetadata(map[string]any{"store": string(store)})
}

func (s *Service) loadStoreCredentials(ctx context.Context, appID string) (StoreCredentials, error) {
	if s.appStore == nil {
		return StoreCredentials{}, fmt.Errorf("core: app store is not configured")
	}
	payload, err := s.appStore.GetCredentials(ctx, appID)
	if err != nil {
		return StoreCredentials{}, err
	}
	if len(payload) == 0 {
		return StoreCredentials{}, nil
	}
	if s.secretProvider != nil {
		plain, decryptErr := s.secretProvider.Decrypt(ctx, payload)
		if decryptErr != nil {
			return StoreCredentials{}, decryptErr
		}
		payload = plain
	}
	var creds StoreCredentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return StoreCredentials{}, fmt.Errorf("core: decode store credentials: %w", err)
	}
	return creds, nil
}

// storeClient assembles the vendor client for one app, loading and decrypting
// its credentials on every call. Nothing derived from the key material is
// cached between calls.
func (s *Service) storeClient(ctx context.Context, app App, store Store) (StoreClient, error) {
	factory, err := s.resolveStoreFactory(store)
	if err != nil {
		return nil, err
	}
	creds, err := s.loadStoreCredentials(ctx, app.ID)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !creds.ForStore(store) {
		wrapped := s.errorFactory(
			fmt.Sprintf("credentials for store %q are not configured on app %q", store, app.ID),
			goerrors.CategoryValidation,
		).WithTextCode("IAP_CREDENTIALS_MISSING")
		return nil, wrapped.WithMetadata(map[string]any{"app_id": app.ID, "store": string(store)})
	}
	client, err := factory(StoreClientDeps{
		App:         app,
		Credentials: creds,
		Transport:   s.transport,
		RateLimit:   s.rateLimitPolicy,
		Logger:      s.logger,
		Now:         s.now,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return client, nil
}

// peekClient builds a credential-free client good only for envelope decoding.
func (s *Service) peekClient(store Store) (StoreClient, error) {
	factory, err := s.resolveStoreFactory(store)
	if err != nil {
		return nil, err
	}
	client, err := factory(StoreClientDeps{
		Transport: s.transport,
		Logger:    s.logger,
		Now:       s.now,
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return client, nil
}

func requireTrimmed(value, message string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("core: %s", message)
	}
	return trimmed, nil
}

var _ BillingService = (*Service)(nil)
