package query

import (
	"context"

	"github.com/goliatone/go-iap/core"
)

type SubscriberReader interface {
	GetSubscriber(ctx context.Context, appID, appUserID string) (core.SubscriberInfo, error)
}

type EventReader interface {
	ListEvents(ctx context.Context, in core.ListEventsInput) ([]core.Event, error)
}

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, in core.ListDeliveriesInput) ([]core.WebhookDelivery, error)
}

type GetSubscriberQuery struct {
	reader SubscriberReader
}

func NewGetSubscriberQuery(reader SubscriberReader) *GetSubscriberQuery {
	return &GetSubscriberQuery{reader: reader}
}

func (q *GetSubscriberQuery) Query(ctx context.Context, msg GetSubscriberMessage) (core.SubscriberInfo, error) {
	if q == nil || q.reader == nil {
		return core.SubscriberInfo{}, queryDependencyError("query: subscriber reader is required")
	}
	return q.reader.GetSubscriber(ctx, msg.AppID, msg.AppUserID)
}

type ListEventsQuery struct {
	reader EventReader
}

func NewListEventsQuery(reader EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) ([]core.Event, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.ListEvents(ctx, msg.Input)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) ([]core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Input)
}
