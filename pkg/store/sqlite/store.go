// Package sqlite is the concrete Store sink from §6, persisting one row per
// URI in a SQLite database. Grounded on the teacher's
// pkg/embeddings/sqlite/store.go: the same sql.Open/EnsureSchema/ExecContext
// idiom, the same modernc.org/sqlite pure-Go driver, rewired from note/chunk
// embeddings to the miner's URI-keyed graph rows.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"

	_ "modernc.org/sqlite"
)

// Store implements miner.Store. The "batch update" wire format it parses is
// the tiny private convention this engine itself emits
// (Builder.BatchText's "DROP GRAPH <uri>; ..." text) -- it is not a general
// SPARQL engine, matching §6's note that this repo is the only writer and
// only reader of that format.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite-backed store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the table and indices if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS entries (
			uri               TEXT PRIMARY KEY,
			file_name         TEXT NOT NULL,
			file_last_modified INTEGER NOT NULL,
			is_directory      INTEGER NOT NULL DEFAULT 0,
			parent_uri        TEXT,
			payload           TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_parent_uri ON entries(parent_uri);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Reset drops every recorded entry, backing the `-r`/force-reindex CLI flag
// from §6: a subsequent crawl finds no matching mtime for any URI, so
// should_change_index reports true for everything.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	return err
}

// MTime answers the store's recorded last-modified time for u.
func (s *Store) MTime(ctx context.Context, u uri.URI) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT file_last_modified FROM entries WHERE uri = ?`, string(u)).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// Known reports whether the store has any record for u at all.
func (s *Store) Known(ctx context.Context, u uri.URI) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE uri = ?`, string(u)).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Descendants returns every URI recorded with parentURI under root,
// recursively, used by the move algorithm's recursive URI rewrite.
func (s *Store) Descendants(ctx context.Context, root uri.URI) ([]uri.URI, error) {
	var out []uri.URI
	frontier := []uri.URI{root}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]
		rows, err := s.db.QueryContext(ctx, `SELECT uri FROM entries WHERE parent_uri = ?`, string(parent))
		if err != nil {
			return nil, err
		}
		var children []uri.URI
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				rows.Close()
				return nil, err
			}
			children = append(children, uri.URI(u))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		out = append(out, children...)
		frontier = append(frontier, children...)
	}
	return out, nil
}

// Remove deletes the graph for u and every descendant URI.
func (s *Store) Remove(ctx context.Context, u uri.URI) error {
	descendants, err := s.Descendants(ctx, u)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE uri = ?`, string(u)); err != nil {
		tx.Rollback()
		return err
	}
	for _, d := range descendants {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE uri = ?`, string(d)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Rename rewrites from's URI (and every descendant's URI) to to, applying
// the suffix-preserving scheme from §4.7 step 3.
func (s *Store) Rename(ctx context.Context, from, to uri.URI) error {
	descendants, err := s.Descendants(ctx, from)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := renameOne(ctx, tx, from, to); err != nil {
		tx.Rollback()
		return err
	}
	for _, d := range descendants {
		childTo := uri.URI(string(to) + d.Suffix(from))
		if err := renameOne(ctx, tx, d, childTo); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func renameOne(ctx context.Context, tx *sql.Tx, from, to uri.URI) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entries SET uri = ?, file_name = ?, parent_uri = CASE WHEN parent_uri = ? THEN ? ELSE parent_uri END
		WHERE uri = ?
	`, string(to), to.Name(), string(from.Parent()), string(to.Parent()), string(from))
	return err
}

// BatchUpdate applies record, the "DROP GRAPH <uri>; field=value ..." text
// produced by Builder.BatchText, as a single idempotent upsert.
func (s *Store) BatchUpdate(ctx context.Context, record string) error {
	u, fields, err := parseBatch(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (uri, file_name, file_last_modified, is_directory, parent_uri, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			file_name = excluded.file_name,
			file_last_modified = excluded.file_last_modified,
			is_directory = excluded.is_directory,
			parent_uri = excluded.parent_uri,
			payload = excluded.payload
	`, string(u), fields["fileName"], fields["lastModifiedUnix"], fields["isDirectory"], fields["parentURI"], fields["payload"])
	return err
}

// parseBatch extracts the URI and field map from the private wire format
// emitted by Builder.BatchText. The format is "DROP GRAPH <uri>; k=v k=v ...";
// every whitespace-separated token that is not one of the fileName,
// lastModified, isDirectory or parentURI fields is joined with single spaces
// into the payload column.
func parseBatch(record string) (uri.URI, map[string]any, error) {
	const prefix = "DROP GRAPH <"
	if !strings.HasPrefix(record, prefix) {
		return "", nil, fmt.Errorf("sqlite: malformed batch update (missing DROP GRAPH prefix)")
	}
	rest := record[len(prefix):]
	end := strings.Index(rest, ">;")
	if end < 0 {
		return "", nil, fmt.Errorf("sqlite: malformed batch update (missing URI terminator)")
	}
	u := uri.URI(rest[:end])
	body := strings.TrimSpace(rest[end+2:])

	fields := map[string]any{
		"fileName":         u.Name(),
		"lastModifiedUnix": int64(0),
		"isDirectory":      0,
		"parentURI":        string(u.Parent()),
		"payload":          "",
	}
	var payloadParts []string
	for _, tok := range strings.Fields(body) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			payloadParts = append(payloadParts, tok)
			continue
		}
		key, val := kv[0], kv[1]
		switch key {
		case "fileName":
			fields["fileName"] = val
		case "lastModified":
			t, err := time.Parse(time.RFC3339, val)
			if err == nil {
				fields["lastModifiedUnix"] = t.Unix()
			}
		case "isDirectory":
			if val == "true" {
				fields["isDirectory"] = 1
			}
		case "parentURI":
			fields["parentURI"] = val
		default:
			payloadParts = append(payloadParts, tok)
		}
	}
	fields["payload"] = strings.Join(payloadParts, " ")
	return u, fields, nil
}
