package iap

import (
	"context"
	"fmt"
	"reflect"

	iapcommand "github.com/goliatone/go-iap/command"
	"github.com/goliatone/go-iap/core"
	iapquery "github.com/goliatone/go-iap/query"
)

type CommandQueryService interface {
	iapcommand.MutatingService
	iapquery.SubscriberReader
	iapquery.EventReader
}

type Commands struct {
	SubmitReceipt    *iapcommand.SubmitReceiptCommand
	RegisterApp      *iapcommand.RegisterAppCommand
	RegisterEndpoint *iapcommand.RegisterEndpointCommand
	SyncCatalog      *iapcommand.SyncCatalogCommand
}

type Queries struct {
	GetSubscriber  *iapquery.GetSubscriberQuery
	ListEvents     *iapquery.ListEventsQuery
	ListDeliveries *iapquery.ListDeliveriesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	deliveryReader iapquery.DeliveryReader
}

func WithDeliveryReader(reader iapquery.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("iap: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.deliveryReader
	if reader == nil {
		reader = resolveDeliveryReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SubmitReceipt:    iapcommand.NewSubmitReceiptCommand(service),
		RegisterApp:      iapcommand.NewRegisterAppCommand(service),
		RegisterEndpoint: iapcommand.NewRegisterEndpointCommand(service),
		SyncCatalog:      iapcommand.NewSyncCatalogCommand(service),
	}
	facade.queries = Queries{
		GetSubscriber:  iapquery.NewGetSubscriberQuery(service),
		ListEvents:     iapquery.NewListEventsQuery(service),
		ListDeliveries: iapquery.NewListDeliveriesQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveDeliveryReader finds a delivery-feed source for services that do not
// get one injected: the service itself, its wired delivery store, or a
// DeliveryStore() accessor on its repository factory.
func resolveDeliveryReader(service CommandQueryService) iapquery.DeliveryReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(iapquery.DeliveryReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.DeliveryStore != nil {
		return deliveryStoreReader{store: deps.DeliveryStore}
	}
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName("DeliveryStore")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok {
		return nil
	}
	if len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	store, ok := candidate.Interface().(core.DeliveryStore)
	if !ok {
		return nil
	}
	return deliveryStoreReader{store: store}
}

type deliveryStoreReader struct {
	store core.DeliveryStore
}

func (r deliveryStoreReader) ListDeliveries(ctx context.Context, in core.ListDeliveriesInput) ([]core.WebhookDelivery, error) {
	return r.store.List(ctx, in)
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
