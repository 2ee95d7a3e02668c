package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/granary-ai/granary/internal/version"
)

// The migration system versions the database schema.
//
// Flow:
// 1. preMigrate: if the database is uninitialized, apply LATEST.sql
// 2. prod mode: replay incremental migrations between the applied and
//    the shipped schema version
//
// Applied versions are recorded in migration_history.
//
// Migration files live at store/migration/{driver}/{minor}/NN__description.sql
// where NN is a zero-padded patch number. Files sort lexicographically and
// apply in order. LATEST.sql holds the full schema for new installations.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch number and
	// the description in a migration file name, e.g. "01__add_token_estimate.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	// defaultSchemaVersion stands in when no migration history exists yet.
	defaultSchemaVersion = "0.0.0"
)

// Migrate brings the database schema up to the version shipped with this
// build. Fresh databases get the full schema in one shot.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	if s.profile.Mode != "prod" {
		// Dev databases are initialized from LATEST.sql and recreated at
		// will, so incremental migrations do not apply.
		return nil
	}

	currentSchemaVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	appliedSchemaVersion, err := s.getAppliedSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get applied schema version")
	}

	if version.IsVersionGreaterThan(appliedSchemaVersion, currentSchemaVersion) {
		slog.Error("cannot downgrade schema version",
			slog.String("appliedVersion", appliedSchemaVersion),
			slog.String("currentVersion", currentSchemaVersion),
		)
		return errors.Errorf("cannot downgrade schema version from %s to %s", appliedSchemaVersion, currentSchemaVersion)
	}
	if version.IsVersionGreaterThan(currentSchemaVersion, appliedSchemaVersion) {
		if err := s.applyMigrations(ctx, appliedSchemaVersion, currentSchemaVersion); err != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}
	}
	return nil
}

// preMigrate checks if the database is initialized and applies the latest
// schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file: %s", filePath)
	}

	tx, err := s.driver.GetDB().Begin()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Wrapf(err, "failed to execute SQL file %s", filePath)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	schemaVersion, err := s.GetCurrentSchemaVersion()
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	if _, err := s.UpsertMigrationHistory(ctx, &UpsertMigrationHistory{Version: schemaVersion}); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	slog.Info("database initialized successfully", slog.String("schemaVersion", schemaVersion))
	return nil
}

// applyMigrations applies all migration files between the applied and the
// target schema version in a single transaction.
func (s *Store) applyMigrations(ctx context.Context, appliedSchemaVersion, targetSchemaVersion string) error {
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s*/*.sql", s.getMigrationBasePath()))
	if err != nil {
		return errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)

	tx, err := s.driver.GetDB().Begin()
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("start migration",
		slog.String("appliedSchemaVersion", appliedSchemaVersion),
		slog.String("targetSchemaVersion", targetSchemaVersion))

	migrationsApplied := 0
	for _, filePath := range filePaths {
		fileSchemaVersion, err := s.getSchemaVersionOfMigrateScript(filePath)
		if err != nil {
			return errors.Wrap(err, "failed to get schema version of migrate script")
		}
		if !shouldApplyMigration(fileSchemaVersion, appliedSchemaVersion, targetSchemaVersion) {
			continue
		}

		slog.Info("applying migration",
			slog.String("file", filePath),
			slog.String("version", fileSchemaVersion))

		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		migrationsApplied++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", migrationsApplied))

	if _, err := s.UpsertMigrationHistory(ctx, &UpsertMigrationHistory{Version: targetSchemaVersion}); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

// shouldApplyMigration reports whether a migration file version lies between
// the applied database version and the target version.
func shouldApplyMigration(fileVersion, appliedVersion, targetVersion string) bool {
	return version.IsVersionGreaterThan(fileVersion, appliedVersion) &&
		version.IsVersionGreaterOrEqualThan(targetVersion, fileVersion)
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

// GetCurrentSchemaVersion derives the schema version shipped with this build
// from the migration files of the current minor version.
func (s *Store) GetCurrentSchemaVersion() (string, error) {
	currentVersion := version.GetCurrentVersion(s.profile.Mode)
	minorVersion := version.GetMinorVersion(currentVersion)
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s%s/*.sql", s.getMigrationBasePath(), minorVersion))
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration files")
	}

	sort.Strings(filePaths)
	if len(filePaths) == 0 {
		return fmt.Sprintf("%s.0", minorVersion), nil
	}
	return s.getSchemaVersionOfMigrateScript(filePaths[len(filePaths)-1])
}

// getAppliedSchemaVersion returns the greatest schema version recorded in
// migration_history.
func (s *Store) getAppliedSchemaVersion(ctx context.Context) (string, error) {
	histories, err := s.ListMigrationHistories(ctx, &FindMigrationHistory{})
	if err != nil {
		return "", errors.Wrap(err, "failed to list migration histories")
	}
	if len(histories) == 0 {
		return defaultSchemaVersion, nil
	}

	versions := make([]string, 0, len(histories))
	for _, history := range histories {
		versions = append(versions, history.Version)
	}
	sort.Sort(version.SortVersion(versions))
	return versions[len(versions)-1], nil
}

// getSchemaVersionOfMigrateScript extracts the schema version from a
// migration script path, in the format "major.minor.patch".
func (s *Store) getSchemaVersionOfMigrateScript(filePath string) (string, error) {
	// The latest schema file always carries the current schema version.
	if strings.HasSuffix(filePath, LatestSchemaFileName) {
		return s.GetCurrentSchemaVersion()
	}

	normalizedPath := filepath.ToSlash(filePath)
	elements := strings.Split(normalizedPath, "/")
	if len(elements) < 2 {
		return "", errors.Errorf("invalid migration file path: %s", filePath)
	}
	minorVersion := elements[len(elements)-2]
	rawPatchVersion := strings.Split(elements[len(elements)-1], MigrateFileNameSplit)[0]
	patchVersion, err := strconv.Atoi(rawPatchVersion)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert patch version to int: %s", rawPatchVersion)
	}
	return fmt.Sprintf("%s.%d", minorVersion, patchVersion+1), nil
}

// execute executes a SQL statement within a transaction context.
// PostgreSQL cannot run multiple statements in a single ExecContext call,
// so the statement is split and executed piecewise there.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if s.profile.Driver == "postgres" {
		return s.executeMultiStmt(ctx, tx, stmt)
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}

func (s *Store) executeMultiStmt(ctx context.Context, tx *sql.Tx, sql string) error {
	statements := splitSQL(sql)
	for i, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
		}
	}
	return nil
}

// splitSQL splits a multi-statement SQL string into individual statements,
// respecting single-quoted strings, dollar-quoted bodies and comments.
func splitSQL(sql string) []string {
	var statements []string
	var currentStmt strings.Builder
	lines := strings.Split(sql, "\n")

	inDollarQuote := false
	dollarQuoteTag := ""
	inSingleQuote := false
	inMultiLineComment := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Skip pure comment lines
		if strings.HasPrefix(trimmed, "--") && !inDollarQuote && !inSingleQuote && !inMultiLineComment {
			continue
		}

		// Skip empty lines outside of dollar quotes
		if trimmed == "" && !inDollarQuote {
			if currentStmt.Len() > 0 {
				currentStmt.WriteString("\n")
			}
			continue
		}

		i := 0
		for i < len(line) {
			ch := line[i]

			// Check for dollar quote start/end
			if !inSingleQuote && !inMultiLineComment && ch == '$' {
				tagEnd := i + 1
				for tagEnd < len(line) && line[tagEnd] != '$' {
					tagEnd++
				}
				if tagEnd < len(line) && line[tagEnd] == '$' {
					tag := line[i : tagEnd+1]
					if inDollarQuote && tag == dollarQuoteTag {
						inDollarQuote = false
						dollarQuoteTag = ""
						currentStmt.WriteString(tag)
						i = tagEnd + 1
						continue
					} else if !inDollarQuote {
						inDollarQuote = true
						dollarQuoteTag = tag
						currentStmt.WriteString(tag)
						i = tagEnd + 1
						continue
					}
				}
			}

			if ch == '\'' && !inDollarQuote && !inMultiLineComment {
				inSingleQuote = !inSingleQuote
				currentStmt.WriteByte(ch)
				i++
				continue
			}

			if !inSingleQuote && !inDollarQuote && i+1 < len(line) && line[i:i+2] == "/*" {
				inMultiLineComment = true
				i += 2
				continue
			}
			if inMultiLineComment && i+1 < len(line) && line[i:i+2] == "*/" {
				inMultiLineComment = false
				i += 2
				continue
			}

			// Skip inline single-line comments
			if !inSingleQuote && !inDollarQuote && !inMultiLineComment && ch == '-' && i+1 < len(line) && line[i+1] == '-' {
				break
			}

			// Statement separator
			if ch == ';' && !inSingleQuote && !inDollarQuote && !inMultiLineComment {
				currentStmt.WriteByte(ch)
				stmt := strings.TrimSpace(currentStmt.String())
				if stmt != "" {
					statements = append(statements, stmt)
				}
				currentStmt.Reset()
				i++
				for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
					i++
				}
				continue
			}

			currentStmt.WriteByte(ch)
			i++
		}

		if currentStmt.Len() > 0 {
			currentStmt.WriteString("\n")
		}
	}

	if currentStmt.Len() > 0 {
		stmt := strings.TrimSpace(currentStmt.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}
