package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-iap/core"
)

type MutatingService interface {
	SubmitReceipt(ctx context.Context, in core.SubmitReceiptInput) (core.Transaction, error)
	RegisterApp(ctx context.Context, in core.RegisterAppInput) (core.App, error)
	CreateWebhookEndpoint(ctx context.Context, in core.CreateEndpointInput) (core.WebhookEndpoint, error)
	SyncProducts(ctx context.Context, appID string) (core.CatalogSyncResult, error)
}

type SubmitReceiptCommand struct {
	service MutatingService
}

func NewSubmitReceiptCommand(service MutatingService) *SubmitReceiptCommand {
	return &SubmitReceiptCommand{service: service}
}

func (c *SubmitReceiptCommand) Execute(ctx context.Context, msg SubmitReceiptMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: receipt service is required")
	}
	out, err := c.service.SubmitReceipt(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterAppCommand struct {
	service MutatingService
}

func NewRegisterAppCommand(service MutatingService) *RegisterAppCommand {
	return &RegisterAppCommand{service: service}
}

func (c *RegisterAppCommand) Execute(ctx context.Context, msg RegisterAppMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: app registry service is required")
	}
	out, err := c.service.RegisterApp(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterEndpointCommand struct {
	service MutatingService
}

func NewRegisterEndpointCommand(service MutatingService) *RegisterEndpointCommand {
	return &RegisterEndpointCommand{service: service}
}

func (c *RegisterEndpointCommand) Execute(ctx context.Context, msg RegisterEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.CreateWebhookEndpoint(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncCatalogCommand struct {
	service MutatingService
}

func NewSyncCatalogCommand(service MutatingService) *SyncCatalogCommand {
	return &SyncCatalogCommand{service: service}
}

func (c *SyncCatalogCommand) Execute(ctx context.Context, msg SyncCatalogMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: catalog service is required")
	}
	out, err := c.service.SyncProducts(ctx, msg.AppID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
