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

type APIKeyStore struct {
	db   *bun.DB
	repo repository.Repository[*apiKeyRecord]
}

func NewAPIKeyStore(db *bun.DB) (*APIKeyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*apiKeyRecord](db, apiKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid api key repository wiring: %w", err)
		}
	}
	return &APIKeyStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *APIKeyStore) Create(ctx context.Context, key core.APIKey) (core.APIKey, error) {
	if s == nil || s.repo == nil {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	if strings.TrimSpace(key.AppID) == "" {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key app id is required")
	}
	if strings.TrimSpace(key.KeyHash) == "" {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key hash is required")
	}

	record := newAPIKeyRecord(key, time.Now().UTC())
	record.ID = uuid.NewString()
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.APIKey{}, err
	}
	return record.toDomain(), nil
}

// GetByHash returns the key with the given hash whether or not it has been
// revoked; callers inspect RevokedAt themselves.
func (s *APIKeyStore) GetByHash(ctx context.Context, keyHash string) (core.APIKey, error) {
	if s == nil || s.db == nil {
		return core.APIKey{}, fmt.Errorf("sqlstore: api key store is not configured")
	}
	record := &apiKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key_hash = ?", strings.TrimSpace(keyHash)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.APIKey{}, core.ErrAPIKeyNotFound
		}
		return core.APIKey{}, err
	}
	return record.toDomain(), nil
}

// Revoke stamps the key once; revoking an already revoked key keeps the
// original timestamp.
func (s *APIKeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: api key store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrAPIKeyNotFound
	}
	res, err := s.db.NewUpdate().
		Model((*apiKeyRecord)(nil)).
		Set("revoked_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}

	exists, err := s.db.NewSelect().
		Model((*apiKeyRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrAPIKeyNotFound
	}
	return nil
}
