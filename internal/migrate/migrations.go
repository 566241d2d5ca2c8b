// Package migrate brings a workspace database up to the latest embedded
// schema revision.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type revision struct {
	number int
	file   string
	stmts  string
}

// loadRevisions reads the embedded sql files. File names are
// "<number>_<label>.sql"; the numeric prefix orders them.
func loadRevisions() ([]revision, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	revs := make([]revision, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		prefix, _, found := strings.Cut(name, "_")
		if !found {
			return nil, fmt.Errorf("schema file %s: missing revision prefix", name)
		}
		n, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: bad revision prefix: %w", name, err)
		}
		body, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return nil, err
		}
		revs = append(revs, revision{number: n, file: name, stmts: string(body)})
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].number < revs[j].number })
	return revs, nil
}

// Migrate applies every revision newer than the database's recorded one.
// All pending revisions and the version bump commit as a single transaction,
// so a failed upgrade leaves the old schema intact.
func Migrate(db *sql.DB) error {
	revs, err := loadRevisions()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("prepare schema_version: %w", err)
	}
	var applied int
	switch err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&applied); err {
	case nil:
	case sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	default:
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, rev := range revs {
		if rev.number <= applied {
			continue
		}
		if _, err := tx.Exec(rev.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", rev.file, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, rev.number); err != nil {
			return fmt.Errorf("record revision %d: %w", rev.number, err)
		}
		applied = rev.number
	}
	return tx.Commit()
}
