package query

import (
	"strings"

	"github.com/goliatone/go-iap/core"
)

const (
	TypeGetSubscriber  = "iap.query.subscriber.get"
	TypeListEvents     = "iap.query.event.list"
	TypeListDeliveries = "iap.query.delivery.list"
)

type GetSubscriberMessage struct {
	AppID     string
	AppUserID string
}

func (GetSubscriberMessage) Type() string { return TypeGetSubscriber }

func (m GetSubscriberMessage) Validate() error {
	if strings.TrimSpace(m.AppID) == "" {
		return queryValidationError("app_id", "app id is required")
	}
	if strings.TrimSpace(m.AppUserID) == "" {
		return queryValidationError("app_user_id", "app user id is required")
	}
	return nil
}

type ListEventsMessage struct {
	Input core.ListEventsInput
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if m.Input.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Input core.ListDeliveriesInput
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Input.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Input.Status != "" {
		if _, err := core.ParseDeliveryStatus(string(m.Input.Status)); err != nil {
			return queryWrapValidation(err, "query: invalid delivery status")
		}
	}
	return nil
}
