package inbound

import (
	"context"
	"net/http"

	"github.com/goliatone/go-iap/core"
)

// Reconciler is the slice of the billing service the intake needs.
type Reconciler interface {
	ReconcileNotification(ctx context.Context, input core.NotificationInput) (core.ReconcileResult, error)
}

// StoreNotificationHandler feeds one storefront's notifications into the
// reconciler. The app is resolved from request metadata when present and from
// the notification payload otherwise.
type StoreNotificationHandler struct {
	Reconciler Reconciler
	StoreID    core.Store
	SurfaceID  string
}

func NewAppleNotificationHandler(reconciler Reconciler) *StoreNotificationHandler {
	return &StoreNotificationHandler{
		Reconciler: reconciler,
		StoreID:    core.StoreApple,
		SurfaceID:  SurfaceApple,
	}
}

func NewPlayNotificationHandler(reconciler Reconciler) *StoreNotificationHandler {
	return &StoreNotificationHandler{
		Reconciler: reconciler,
		StoreID:    core.StoreGoogle,
		SurfaceID:  SurfacePlay,
	}
}

func (h *StoreNotificationHandler) Surface() string {
	if h == nil {
		return ""
	}
	return h.SurfaceID
}

func (h *StoreNotificationHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.Reconciler == nil {
		return core.InboundResult{}, inboundInternal("inbound: handler requires a reconciler", nil)
	}

	appID := ""
	if req.Metadata != nil {
		appID = trimAny(req.Metadata["app_id"])
	}

	result, err := h.Reconciler.ReconcileNotification(ctx, core.NotificationInput{
		Store: h.StoreID,
		AppID: appID,
		Body:  req.Body,
	})
	if err != nil {
		return core.InboundResult{}, err
	}

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"app_id":   result.AppID,
			"recorded": result.Recorded,
			"enqueued": result.Enqueued,
		},
	}, nil
}

// NewStoreDispatcher wires a dispatcher with in-process idempotency and both
// storefront handlers registered. Registration cannot conflict here, so the
// errors are discarded.
func NewStoreDispatcher(reconciler Reconciler) *Dispatcher {
	dispatcher := NewDispatcher(NewInMemoryClaimStore())
	_ = dispatcher.Register(NewAppleNotificationHandler(reconciler))
	_ = dispatcher.Register(NewPlayNotificationHandler(reconciler))
	return dispatcher
}

var _ core.InboundHandler = (*StoreNotificationHandler)(nil)
