package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// maxVariables stays under the default SQLITE_MAX_VARIABLE_NUMBER of older builds.
const maxVariables = 500

const schema = `
	PRAGMA synchronous = NORMAL;
	PRAGMA temp_store = MEMORY;

	CREATE TABLE IF NOT EXISTS accessions (
		kind TEXT NOT NULL,
		token TEXT NOT NULL,
		tax_id INTEGER,
		hit_def TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, token)
	);
	CREATE INDEX IF NOT EXISTS idx_accessions_pending ON accessions(updated_at) WHERE tax_id IS NULL;

	CREATE TABLE IF NOT EXISTS taxa (
		id INTEGER PRIMARY KEY,
		parent_id INTEGER NOT NULL,
		rank TEXT NOT NULL,
		names TEXT NOT NULL
	);
`

// Store keeps accessions and the taxonomy tree in one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open sqlite store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// Writers queue on one connection instead of racing for the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setup sqlite store: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Accessions() *Accessions {
	return &Accessions{Store: s}
}

func (s *Store) Taxa() *Taxa {
	return &Taxa{Store: s}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
