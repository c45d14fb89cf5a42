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

type AppStore struct {
	db   *bun.DB
	repo repository.Repository[*appRecord]
}

func NewAppStore(db *bun.DB) (*AppStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*appRecord](db, appHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid app repository wiring: %w", err)
		}
	}
	return &AppStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *AppStore) Create(ctx context.Context, in core.RegisterAppInput) (core.App, error) {
	if s == nil || s.repo == nil {
		return core.App{}, fmt.Errorf("sqlstore: app store is not configured")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.BundleID = strings.TrimSpace(in.BundleID)
	if in.Name == "" {
		return core.App{}, fmt.Errorf("sqlstore: app name is required")
	}
	if in.BundleID == "" {
		return core.App{}, fmt.Errorf("sqlstore: app bundle id is required")
	}
	if err := in.Platform.Validate(); err != nil {
		return core.App{}, err
	}

	record := newAppRecord(in, time.Now().UTC())
	record.ID = uuid.NewString()
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.App{}, err
	}
	return record.toDomain(), nil
}

func (s *AppStore) Get(ctx context.Context, id string) (core.App, error) {
	if s == nil || s.db == nil {
		return core.App{}, fmt.Errorf("sqlstore: app store is not configured")
	}
	record := &appRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.App{}, core.ErrAppNotFound
		}
		return core.App{}, err
	}
	return record.toDomain(), nil
}

func (s *AppStore) GetByBundleID(ctx context.Context, platform core.Platform, bundleID string) (core.App, error) {
	if s == nil || s.db == nil {
		return core.App{}, fmt.Errorf("sqlstore: app store is not configured")
	}
	record := &appRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.platform = ?", string(platform)).
		Where("?TableAlias.bundle_id = ?", strings.TrimSpace(bundleID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.App{}, core.ErrAppNotFound
		}
		return core.App{}, err
	}
	return record.toDomain(), nil
}

func (s *AppStore) List(ctx context.Context) ([]core.App, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: app store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.App, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AppStore) SaveCredentials(ctx context.Context, appID string, ciphertext []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: app store is not configured")
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return core.ErrAppNotFound
	}
	if len(ciphertext) == 0 {
		return fmt.Errorf("sqlstore: credentials ciphertext is required")
	}
	res, err := s.db.NewUpdate().
		Model((*appRecord)(nil)).
		Set("credentials_ciphertext = ?", ciphertext).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.ErrAppNotFound
	}
	return nil
}

func (s *AppStore) GetCredentials(ctx context.Context, appID string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: app store is not configured")
	}
	record := &appRecord{}
	err := s.db.NewSelect().
		Model(record).
		Column("id", "credentials_ciphertext").
		Where("?TableAlias.id = ?", strings.TrimSpace(appID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrAppNotFound
		}
		return nil, err
	}
	// An app without stored credentials yields an empty payload, not an
	// error; the caller decides whether that is acceptable.
	return append([]byte(nil), record.CredentialsCiphertext...), nil
}
