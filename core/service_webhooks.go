package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

func (s *Service) CreateWebhookEndpoint(ctx context.Context, in CreateEndpointInput) (endpoint WebhookEndpoint, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"app_id": in.AppID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_webhook_endpoint", err, fields)
	}()

	if s.endpointStore == nil {
		err = s.mapError(fmt.Errorf("core: webhook endpoint store is not configured"))
		return WebhookEndpoint{}, err
	}
	candidate := WebhookEndpoint{AppID: in.AppID, URL: in.URL, Active: true}
	if err = candidate.Validate(); err != nil {
		err = s.mapError(err)
		return WebhookEndpoint{}, err
	}
	if _, err = s.GetApp(ctx, in.AppID); err != nil {
		return WebhookEndpoint{}, err
	}

	secret, secretErr := generateEndpointSecret()
	if secretErr != nil {
		err = s.mapError(secretErr)
		return WebhookEndpoint{}, err
	}
	candidate.Secret = secret

	endpoint, err = s.endpointStore.Create(ctx, candidate)
	if err != nil {
		err = s.mapError(err)
		return WebhookEndpoint{}, err
	}
	return endpoint, nil
}

func (s *Service) ListWebhookEndpoints(ctx context.Context, appID string) ([]WebhookEndpoint, error) {
	if s.endpointStore == nil {
		return nil, s.mapError(fmt.Errorf("core: webhook endpoint store is not configured"))
	}
	appID, err := requireTrimmed(appID, "app id is required")
	if err != nil {
		return nil, s.mapError(err)
	}
	endpoints, err := s.endpointStore.ListByApp(ctx, appID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return endpoints, nil
}

// DisableWebhookEndpoint stops fan-out to the endpoint. Deliveries already
// queued against it stay queued; the dispatcher skips inactive targets.
func (s *Service) DisableWebhookEndpoint(ctx context.Context, endpointID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"endpoint_id": endpointID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disable_webhook_endpoint", err, fields)
	}()

	if s.endpointStore == nil {
		err = s.mapError(fmt.Errorf("core: webhook endpoint store is not configured"))
		return err
	}
	if endpointID, err = requireTrimmed(endpointID, "endpoint id is required"); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.endpointStore.SetActive(ctx, endpointID, false); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) ListEvents(ctx context.Context, in ListEventsInput) ([]Event, error) {
	if s.eventStore == nil {
		return nil, s.mapError(fmt.Errorf("core: event store is not configured"))
	}
	in.Limit = s.normalizeListLimit(in.Limit)
	events, err := s.eventStore.List(ctx, in)
	if err != nil {
		return nil, s.mapError(err)
	}
	return events, nil
}

func (s *Service) ListDeliveries(ctx context.Context, in ListDeliveriesInput) ([]WebhookDelivery, error) {
	if s.deliveryStore == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery store is not configured"))
	}
	if in.Status != "" {
		status, err := ParseDeliveryStatus(string(in.Status))
		if err != nil {
			return nil, s.mapError(err)
		}
		in.Status = status
	}
	in.Limit = s.normalizeListLimit(in.Limit)
	deliveries, err := s.deliveryStore.List(ctx, in)
	if err != nil {
		return nil, s.mapError(err)
	}
	return deliveries, nil
}

func (s *Service) normalizeListLimit(limit int) int {
	defaultLimit := s.config.Events.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultConfig().Events.DefaultLimit
	}
	maxLimit := s.config.Events.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultConfig().Events.MaxLimit
	}
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func generateEndpointSecret() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate endpoint secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
