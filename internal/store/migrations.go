package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "activity_and_profile_tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS ActivityTable (
				rowIdNum INTEGER PRIMARY KEY AUTOINCREMENT,
				activity TEXT NOT NULL,
				date INTEGER NOT NULL,
				amount REAL NOT NULL,
				userid TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS Profile (
				rowIdNum INTEGER PRIMARY KEY AUTOINCREMENT,
				userid TEXT NOT NULL,
				firstName TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "profile_uniqueness_and_activity_lookup",
		SQL: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_userid_firstname ON Profile (userid, firstName);
			CREATE INDEX IF NOT EXISTS idx_activity_userid_date ON ActivityTable (userid, date);
		`,
	},
}

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "activity_and_profile_tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS ActivityTable (
				rowIdNum BIGSERIAL PRIMARY KEY,
				activity TEXT NOT NULL,
				date BIGINT NOT NULL,
				amount DOUBLE PRECISION NOT NULL,
				userid TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS Profile (
				rowIdNum BIGSERIAL PRIMARY KEY,
				userid TEXT NOT NULL,
				firstname TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "profile_uniqueness_and_activity_lookup",
		SQL: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_profile_userid_firstname ON Profile (userid, firstname);
			CREATE INDEX IF NOT EXISTS idx_activity_userid_date ON ActivityTable (userid, date);
		`,
	},
}

// Migrate applies every migration of the dialect newer than the recorded version.
func (db *DB) Migrate(ctx context.Context) error {
	log.Info().Str("dialect", db.dialect.Name).Msg("Running database migrations")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	log.Debug().Int("current_version", current).Msg("Current schema version")

	for _, m := range db.dialect.Migrations {
		if m.Version <= current {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		err := db.Transaction(ctx, func(ex *Executor) error {
			for i, stmt := range splitStatements(m.SQL) {
				if _, err := ex.Run(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
				}
			}
			if _, err := ex.Run(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

// splitStatements breaks a migration body on statement-terminating semicolons,
// dropping blank lines and -- comments.
func splitStatements(body string) []string {
	var out []string
	var current strings.Builder

	for line := range strings.SplitSeq(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != ";" {
				out = append(out, stmt)
			}
			current.Reset()
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
