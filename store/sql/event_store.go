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

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*eventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EventStore) Append(ctx context.Context, event core.Event) (core.Event, error) {
	if s == nil || s.repo == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(event.EventType) == "" {
		return core.Event{}, fmt.Errorf("sqlstore: event type is required")
	}

	record := newEventRecord(event, time.Now().UTC())
	record.ID = uuid.NewString()
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.Event{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.Event, error) {
	if s == nil || s.db == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &eventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Event{}, fmt.Errorf("sqlstore: event %q not found", strings.TrimSpace(id))
		}
		return core.Event{}, err
	}
	return record.toDomain(), nil
}

// List pages the feed newest first; with a Since bound it flips to oldest
// first so pollers can walk forward from a checkpoint.
func (s *EventStore) List(ctx context.Context, in core.ListEventsInput) ([]core.Event, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	limit := normalizeLimit(in.Limit)

	selectors := []repository.SelectCriteria{
		repository.SelectPaginate(limit, 0),
	}
	if in.Since != nil {
		selectors = append(selectors,
			repository.SelectByTimetz("created_at", ">=", in.Since.UTC()),
			repository.OrderBy("created_at ASC"),
		)
	} else {
		selectors = append(selectors, repository.OrderBy("created_at DESC"))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Event, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
