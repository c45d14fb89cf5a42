package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-iap/core"
)

var (
	_ gocmd.Querier[GetSubscriberMessage, core.SubscriberInfo]     = (*GetSubscriberQuery)(nil)
	_ gocmd.Querier[ListEventsMessage, []core.Event]               = (*ListEventsQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.WebhookDelivery] = (*ListDeliveriesQuery)(nil)
)
