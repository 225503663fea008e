// Command migrate applies the schema in migrations/ using golang-migrate.
// Connection settings come from the same DB_* environment as the server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/welldanyogia/replydesk/backend/internal/config"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
)

// Version is set at build time
var Version = "dev"

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultMigrationsPath   = "migrations"
)

// Options holds migration settings
type Options struct {
	DatabaseURL    string
	MigrationsPath string
	Timeout        time.Duration
	DryRun         bool
}

var log = logger.New(logger.Config{Level: "info", Format: "text", Output: "stderr"})

func main() {
	appCfg := config.Load()

	var (
		dbURL    = flag.String("database-url", appCfg.Database.URL(), "PostgreSQL URL (defaults to the DB_* environment)")
		migrPath = flag.String("path", envOr("MIGRATIONS_PATH", defaultMigrationsPath), "Path to migrations directory")
		timeout  = flag.Duration("timeout", defaultMigrationTimeout, "Lock and connect timeout")
		dryRun   = flag.Bool("dry-run", false, "Show what would be done without executing")
		version  = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Roll back all or N migrations\n")
		fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	opts := &Options{
		DatabaseURL:    *dbURL,
		MigrationsPath: *migrPath,
		Timeout:        *timeout,
		DryRun:         *dryRun,
	}
	if err := runCommand(opts, args[0], args[1:]); err != nil {
		log.Error("Migration command failed", slog.String("command", args[0]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func runCommand(opts *Options, cmd string, args []string) error {
	switch cmd {
	case "create":
		if len(args) < 1 {
			return errors.New("create requires a migration name")
		}
		return createMigration(opts, args[0])
	case "version":
		return showVersion(opts)
	case "up", "down":
		steps, err := optionalInt(args)
		if err != nil {
			return err
		}
		if cmd == "down" {
			steps = -steps
		}
		return migrateSteps(opts, cmd, steps)
	case "goto":
		if len(args) < 1 {
			return errors.New("goto requires a version number")
		}
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		return withMigrate(opts, fmt.Sprintf("goto %d", v), func(m *migrate.Migrate) error {
			return m.Migrate(uint(v))
		})
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		return withMigrate(opts, fmt.Sprintf("force %d", v), func(m *migrate.Migrate) error {
			return m.Force(v)
		})
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

// migrateSteps applies all pending migrations (steps == 0) or |steps| in the sign's direction
func migrateSteps(opts *Options, direction string, steps int) error {
	return withMigrate(opts, direction, func(m *migrate.Migrate) error {
		switch {
		case steps != 0:
			return m.Steps(steps)
		case direction == "down":
			return m.Down()
		default:
			return m.Up()
		}
	})
}

// withMigrate opens a migrate instance, runs fn and logs the version change
func withMigrate(opts *Options, action string, fn func(m *migrate.Migrate) error) error {
	if opts.DryRun {
		log.Info("Dry run", slog.String("action", action))
		return nil
	}

	m, err := newMigrate(opts)
	if err != nil {
		return err
	}
	defer m.Close()

	from, _, _ := m.Version()
	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No migrations to apply", slog.String("action", action))
			return nil
		}
		return fmt.Errorf("%s failed: %w", action, err)
	}

	to, dirty, _ := m.Version()
	log.Info("Migration completed",
		slog.String("action", action),
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

func showVersion(opts *Options) error {
	m, err := newMigrate(opts)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("No migrations have been applied yet")
			return nil
		}
		return fmt.Errorf("failed to get version: %w", err)
	}
	log.Info("Current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// createMigration writes an empty up/down pair with the next sequence number
func createMigration(opts *Options, name string) error {
	next, err := nextMigrationNumber(opts.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to determine next migration number: %w", err)
	}

	files := map[string]string{
		"up":   filepath.Join(opts.MigrationsPath, fmt.Sprintf("%06d_%s.up.sql", next, name)),
		"down": filepath.Join(opts.MigrationsPath, fmt.Sprintf("%06d_%s.down.sql", next, name)),
	}
	if opts.DryRun {
		log.Info("Dry run", slog.String("up", files["up"]), slog.String("down", files["down"]))
		return nil
	}

	if err := os.MkdirAll(opts.MigrationsPath, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}
	for direction, path := range files {
		content := fmt.Sprintf("-- Migration: %s (%s)\n-- Created: %s\n\n", name, direction, time.Now().Format(time.RFC3339))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s migration: %w", direction, err)
		}
	}

	log.Info("Created migration files", slog.String("up", files["up"]), slog.String("down", files["down"]))
	return nil
}

func nextMigrationNumber(migrationsPath string) (int, error) {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	maxNum := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var num int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &num); err == nil && num > maxNum {
			maxNum = num
		}
	}
	return maxNum + 1, nil
}

func newMigrate(opts *Options) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	migrationsPath, err := filepath.Abs(opts.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = opts.Timeout
	return m, nil
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
