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

type TransactionStore struct {
	db   *bun.DB
	repo repository.Repository[*transactionRecord]
}

func NewTransactionStore(db *bun.DB) (*TransactionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*transactionRecord](db, transactionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid transaction repository wiring: %w", err)
		}
	}
	return &TransactionStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert keys transactions on (store, store transaction id): resubmitting the
// same purchase refreshes the stored snapshot instead of inserting a twin.
func (s *TransactionStore) Upsert(ctx context.Context, in core.Transaction) (core.Transaction, error) {
	if s == nil || s.db == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	in.SubscriberID = strings.TrimSpace(in.SubscriberID)
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.StoreTransactionID = strings.TrimSpace(in.StoreTransactionID)
	if in.SubscriberID == "" {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction subscriber id is required")
	}
	if in.StoreTransactionID == "" {
		return core.Transaction{}, fmt.Errorf("sqlstore: store transaction id is required")
	}
	if err := in.Store.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if strings.TrimSpace(string(in.Status)) == "" {
		in.Status = core.TransactionStatusActive
	}
	now := time.Now().UTC()

	var out core.Transaction
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findTransactionTx(ctx, tx, in.Store, in.StoreTransactionID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := newTransactionRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		existing.SubscriberID = in.SubscriberID
		if in.ProductID != "" {
			existing.ProductID = in.ProductID
		}
		existing.Status = string(in.Status)
		if !in.PurchaseDate.IsZero() {
			existing.PurchaseDate = in.PurchaseDate.UTC()
		}
		if in.ExpirationDate == nil {
			existing.ExpirationDate = nil
		} else {
			value := in.ExpirationDate.UTC()
			existing.ExpirationDate = &value
		}
		// Keep the stored receipt when the caller has none.
		if strings.TrimSpace(in.RawReceipt) != "" {
			existing.RawReceipt = in.RawReceipt
		}
		existing.UpdatedAt = now

		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return out, nil
}

func (s *TransactionStore) GetByStoreTransactionID(ctx context.Context, store core.Store, storeTransactionID string) (core.Transaction, error) {
	if s == nil || s.db == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	record := &transactionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.store = ?", string(store)).
		Where("?TableAlias.store_transaction_id = ?", strings.TrimSpace(storeTransactionID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Transaction{}, core.ErrTransactionNotFound
		}
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *TransactionStore) ListBySubscriber(ctx context.Context, subscriberID string) ([]core.Transaction, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: transaction store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subscriber_id", "=", strings.TrimSpace(subscriberID)),
		repository.OrderBy("purchase_date DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findTransactionTx(ctx context.Context, tx bun.Tx, store core.Store, storeTransactionID string) (*transactionRecord, error) {
	record := &transactionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.store = ?", string(store)).
		Where("?TableAlias.store_transaction_id = ?", storeTransactionID).
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
