package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/asakaida/sharing/internal/infrastructure/config"
	"github.com/asakaida/sharing/internal/infrastructure/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

// defaultMigrationsDir is resolved against the directory holding go.mod
const defaultMigrationsDir = "internal/infrastructure/database/migrations/postgres"

var (
	envFlag  string
	pathFlag string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the share store schema",
		Long:          "Applies and rolls back the PostgreSQL share store schema (grants, identities, grant revision) with golang-migrate.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	root.PersistentFlags().StringVar(&pathFlag, "path", "", "Migrations directory (default: "+defaultMigrationsDir+" under the module root)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					return report(m.Up(), "No migrations to apply", "Migration up completed successfully")
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default: 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) > 0 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					steps = n
				}
				return withMigrator(func(m *migrate.Migrate) error {
					return report(m.Steps(-steps), "No migrations to roll back",
						fmt.Sprintf("Rolled back %d migration(s)", steps))
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(func(m *migrate.Migrate) error {
					return report(m.Migrate(uint(version)),
						fmt.Sprintf("Already at version %d", version),
						fmt.Sprintf("Migrated to version %d", version))
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(printVersion)
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the recorded version without migrating (clears the dirty flag)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("migration force failed: %w", err)
					}
					log.Printf("Version forced to %d", version)
					return nil
				})
			},
		},
	)

	return root
}

// withMigrator connects to the configured database and runs fn against
// a migrator over the migrations directory, closing both afterwards
func withMigrator(fn func(m *migrate.Migrate) error) error {
	log.Printf("Using environment: %s", envFlag)

	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := migrationsDir()
	if err != nil {
		return err
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	log.Printf("Connected to database: %s@%s:%d/%s (migrations: %s)",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, dir)

	m, err := pg.NewMigrator(dir)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}

// report logs the outcome of a migration step; ErrNoChange is not a failure
func report(err error, unchanged, done string) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println(unchanged)
		return nil
	case err != nil:
		return fmt.Errorf("migration failed: %w", err)
	default:
		log.Println(done)
		return nil
	}
}

func printVersion(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("Current version: no migrations applied yet")
		return nil
	case err != nil:
		return fmt.Errorf("failed to get version: %w", err)
	case dirty:
		log.Printf("Current version: %d (dirty, a migration failed part way; fix it and run force)", version)
	default:
		log.Printf("Current version: %d", version)
	}
	return nil
}

// migrationsDir returns --path, or the default directory under the nearest go.mod
func migrationsDir() (string, error) {
	if pathFlag != "" {
		return pathFlag, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, defaultMigrationsDir), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above the working directory; pass --path")
		}
		dir = parent
	}
}
