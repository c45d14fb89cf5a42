package sqlstore

import "github.com/goliatone/go-iap/core"

var (
	_ core.AppStore               = (*AppStore)(nil)
	_ core.APIKeyStore            = (*APIKeyStore)(nil)
	_ core.SubscriberStore        = (*SubscriberStore)(nil)
	_ core.TransactionStore       = (*TransactionStore)(nil)
	_ core.EventStore             = (*EventStore)(nil)
	_ core.EntitlementStore       = (*EntitlementStore)(nil)
	_ core.ProductStore           = (*ProductStore)(nil)
	_ core.EndpointStore          = (*EndpointStore)(nil)
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
