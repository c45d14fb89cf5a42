package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	iap "github.com/goliatone/go-iap"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestBillingMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := iap.GetCoreMigrationsFS()
	names := []string{
		"20250210093000_billing_identity",
		"20250210093500_billing_catalog",
		"20250210094000_billing_webhooks",
		"20250210094500_rate_limit_states",
	}
	for _, name := range names {
		paths := []string{
			"data/sql/migrations/" + name + ".up.sql",
			"data/sql/migrations/" + name + ".down.sql",
			"data/sql/migrations/sqlite/" + name + ".up.sql",
			"data/sql/migrations/sqlite/" + name + ".down.sql",
		}
		for _, migrationPath := range paths {
			content, err := fs.ReadFile(root, migrationPath)
			if err != nil {
				t.Fatalf("read migration %s: %v", migrationPath, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected migration %s to have SQL content", migrationPath)
			}
		}
	}
}

func TestSQLiteBillingMigrations_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", fmt.Sprintf(
		"file:migrations-billing-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	root := iap.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ups := []string{
		"20250210093000_billing_identity.up.sql",
		"20250210093500_billing_catalog.up.sql",
		"20250210094000_billing_webhooks.up.sql",
		"20250210094500_rate_limit_states.up.sql",
	}
	for _, migration := range ups {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	requiredTables := []string{
		"iap_apps",
		"iap_api_keys",
		"iap_subscribers",
		"iap_transactions",
		"iap_events",
		"iap_entitlements",
		"iap_products",
		"iap_product_entitlements",
		"iap_webhook_endpoints",
		"iap_webhook_deliveries",
		"iap_rate_limit_states",
	}
	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migrations", tableName)
		}
	}

	insertApp := `
		INSERT INTO iap_apps (id, name, platform, bundle_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertApp,
		"app_migration_1",
		"Puzzle Arcade",
		"ios",
		"com.example.puzzle",
		"2026-01-01T00:00:00Z",
		"2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert app: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertApp,
		"app_migration_2",
		"Puzzle Arcade Again",
		"ios",
		"com.example.puzzle",
		"2026-01-02T00:00:00Z",
		"2026-01-02T00:00:00Z",
	); err == nil {
		t.Fatalf("expected unique (platform, bundle_id) violation")
	}

	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO iap_subscribers (id, app_id, app_user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		"sub_migration_1",
		"app_missing",
		"user-1",
		"2026-01-01T00:00:00Z",
	); err == nil {
		t.Fatalf("expected foreign key violation for unknown app")
	}

	downs := []string{
		"20250210094500_rate_limit_states.down.sql",
		"20250210094000_billing_webhooks.down.sql",
		"20250210093500_billing_catalog.down.sql",
		"20250210093000_billing_identity.down.sql",
	}
	for _, migration := range downs {
		if err := execSQLMigration(context.Background(), db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master after down migrations: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected table %s to be dropped after down migrations", tableName)
		}
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
