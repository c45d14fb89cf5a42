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

type SubscriberStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriberRecord]
}

func NewSubscriberStore(db *bun.DB) (*SubscriberStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriberRecord](db, subscriberHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscriber repository wiring: %w", err)
		}
	}
	return &SubscriberStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert returns the existing row for (app, app user) or inserts one. The
// returned subscriber id is stable across calls.
func (s *SubscriberStore) Upsert(ctx context.Context, appID, appUserID string) (core.Subscriber, error) {
	if s == nil || s.db == nil {
		return core.Subscriber{}, fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	appID = strings.TrimSpace(appID)
	appUserID = strings.TrimSpace(appUserID)
	if appID == "" || appUserID == "" {
		return core.Subscriber{}, fmt.Errorf("sqlstore: app id and app user id are required")
	}

	var out core.Subscriber
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findSubscriberTx(ctx, tx, appID, appUserID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing.toDomain()
			return nil
		}

		record := &subscriberRecord{
			ID:        uuid.NewString(),
			AppID:     appID,
			AppUserID: appUserID,
			CreatedAt: time.Now().UTC(),
		}
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			return insertErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Subscriber{}, err
	}
	return out, nil
}

func (s *SubscriberStore) Get(ctx context.Context, appID, appUserID string) (core.Subscriber, error) {
	if s == nil || s.db == nil {
		return core.Subscriber{}, fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	record := &subscriberRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.app_id = ?", strings.TrimSpace(appID)).
		Where("?TableAlias.app_user_id = ?", strings.TrimSpace(appUserID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Subscriber{}, core.ErrSubscriberNotFound
		}
		return core.Subscriber{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriberStore) GetByID(ctx context.Context, id string) (core.Subscriber, error) {
	if s == nil || s.db == nil {
		return core.Subscriber{}, fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	record := &subscriberRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Subscriber{}, core.ErrSubscriberNotFound
		}
		return core.Subscriber{}, err
	}
	return record.toDomain(), nil
}

func findSubscriberTx(ctx context.Context, tx bun.Tx, appID, appUserID string) (*subscriberRecord, error) {
	record := &subscriberRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.app_id = ?", appID).
		Where("?TableAlias.app_user_id = ?", appUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}
