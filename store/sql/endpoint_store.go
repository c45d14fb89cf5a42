package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EndpointStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEndpointRecord]
}

func NewEndpointStore(db *bun.DB) (*EndpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEndpointRecord](db, endpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook endpoint repository wiring: %w", err)
		}
	}
	return &EndpointStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EndpointStore) Create(ctx context.Context, endpoint core.WebhookEndpoint) (core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: webhook endpoint store is not configured")
	}
	if err := endpoint.Validate(); err != nil {
		return core.WebhookEndpoint{}, err
	}
	if strings.TrimSpace(endpoint.Secret) == "" {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: webhook endpoint secret is required")
	}

	record := newEndpointRecord(endpoint, time.Now().UTC())
	record.ID = uuid.NewString()
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return record.toDomain(), nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.db == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: webhook endpoint store is not configured")
	}
	record := &webhookEndpointRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookEndpoint{}, core.ErrEndpointNotFound
		}
		return core.WebhookEndpoint{}, err
	}
	return record.toDomain(), nil
}

func (s *EndpointStore) ListByApp(ctx context.Context, appID string) ([]core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook endpoint store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("app_id", "=", strings.TrimSpace(appID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEndpoint, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EndpointStore) ListActiveByApp(ctx context.Context, appID string) ([]core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook endpoint store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("app_id", "=", strings.TrimSpace(appID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEndpoint, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EndpointStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrEndpointNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*webhookEndpointRecord)(nil)).
		Set("active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.ErrEndpointNotFound
	}
	return nil
}
