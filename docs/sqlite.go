package docs

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/docsmesh/core"
)

// SQLiteStore keeps documentation chunks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func initSchema(db *sql.DB) error {
	for _, q := range schemaSQL {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("init documentation schema: %w", err)
		}
	}
	return nil
}

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS documentation (
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (url, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documentation_url ON documentation(url)`,
}

// Ping reports core.ErrDependencyUnavailable when the database cannot be reached.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: documentation store: %v", core.ErrDependencyUnavailable, err)
	}
	return nil
}

// PutChunks upserts chunks in one transaction.
func (s *SQLiteStore) PutChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := validateChunk(c); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documentation (url, title, summary, content, chunk_index) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url, chunk_index) DO UPDATE SET title = excluded.title, summary = excluded.summary, content = excluded.content`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.URL, c.Title, c.Summary, c.Content, c.ChunkIndex); err != nil {
			return fmt.Errorf("store chunk %d of %s: %w", c.ChunkIndex, c.URL, err)
		}
	}
	return tx.Commit()
}

// DeletePage removes every chunk of url.
func (s *SQLiteStore) DeletePage(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documentation WHERE url = ?`, url)
	return err
}

// ImportJSONL reads one Chunk per line from r and stores them. Blank lines are
// skipped. It returns the number of chunks imported.
func (s *SQLiteStore) ImportJSONL(ctx context.Context, r io.Reader) (int, error) {
	const batchSize = 500

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		batch []Chunk
		total int
		line  int
	)
	flush := func() error {
		if err := s.PutChunks(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var c Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if err := validateChunk(c); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, c)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// ListPages implements Store.
func (s *SQLiteStore) ListPages(ctx context.Context, mustInclude []string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, summary FROM documentation ORDER BY url, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		pages []Page
		last  string
	)
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.URL, &p.Title, &p.Summary); err != nil {
			return nil, err
		}
		if p.URL == last {
			continue
		}
		last = p.URL
		if !MatchesAny(p.URL, mustInclude) {
			continue
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PageContent implements Store.
func (s *SQLiteStore) PageContent(ctx context.Context, url string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, content, chunk_index FROM documentation WHERE url = ? ORDER BY chunk_index`, url)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c := Chunk{URL: url}
		if err := rows.Scan(&c.Title, &c.Content, &c.ChunkIndex); err != nil {
			return "", err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no content found for URL: %s", core.ErrNotFound, url)
	}
	return FormatPage(chunks), nil
}
