package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/asakaida/sharing/internal/infrastructure/config"
	"github.com/asakaida/sharing/internal/infrastructure/database"
	_ "github.com/lib/pq"
)

// SetupTestDB creates a test database connection and runs migrations
// Tests are skipped when no test database is configured or reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Initialize test config
	if err := config.InitConfig("test"); err != nil {
		t.Skipf("Skipping: failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping: failed to load config: %v", err)
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		t.Skipf("Skipping: STORE_DRIVER is %q", cfg.Store.Driver)
	}

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping: test database unavailable: %v", err)
	}

	// Run migrations
	if err := pg.RunMigrations("../../../internal/infrastructure/database/migrations/postgres"); err != nil {
		pg.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanTables(t, pg.DB)

	return pg.DB
}

// CleanupTestDB closes the database connection and cleans up test data
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	cleanTables(t, db)

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

func cleanTables(t *testing.T, db *sql.DB) {
	t.Helper()

	tables := []string{"grants", "group_memberships", "users"}
	for _, table := range tables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}
}
