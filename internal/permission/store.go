// Package permission implements capability grants scoped to exact
// (path, operation) pairs. Session grants live in memory; persistent grants
// live in an optionally encrypted SQLite database.
package permission

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"path/filepath"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // SQLCipher driver for encrypted SQLite

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/fileutil"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/types"
)

var log = logger.New("permission")

// MinEncryptionKeyLength is the minimum accepted length for a store
// encryption key.
const MinEncryptionKeyLength = 16

// Grant is one capability: permission to perform Operation on the exact
// path string. There is no wildcard or operation hierarchy here: a grant
// for read_file on a path never implies write_file on the same path.
type Grant struct {
	Path      string          `json:"path"`
	Operation types.Operation `json:"operation"`
	Scope     types.Scope     `json:"scope"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key returns the map/storage key for the grant's (path, operation) pair.
// The path is used verbatim: two string forms of the same real path are two
// different grants.
func Key(path string, op types.Operation) string {
	return path + ":" + string(op)
}

// Store persists grants in SQLite, encrypted with SQLCipher when a key is
// configured.
type Store struct {
	conn      *sql.DB
	encrypted bool
}

const schema = `
CREATE TABLE IF NOT EXISTS grants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	operation TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT 'persistent',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(path, operation)
);
CREATE INDEX IF NOT EXISTS idx_grants_path ON grants(path);
`

// OpenStore opens (creating if needed) the grant database at dbPath. When
// encryptionKey is non-empty it must be at least MinEncryptionKeyLength
// characters; the key is passed via the DSN rather than a PRAGMA statement
// so it is never interpolated into SQL.
func OpenStore(dbPath, encryptionKey string) (*Store, error) {
	if err := fileutil.SecureMkdirAll(filepath.Dir(dbPath)); err != nil {
		return nil, errdefs.Transient("permission.OpenStore", err)
	}

	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	if encryptionKey != "" {
		if len(encryptionKey) < MinEncryptionKeyLength {
			return nil, errdefs.Validation("permission.OpenStore",
				"encryption key must be at least %d characters", MinEncryptionKeyLength)
		}
		params.Set("_pragma_key", encryptionKey)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?"+params.Encode())
	if err != nil {
		return nil, errdefs.Transient("permission.OpenStore", err)
	}
	// SQLite supports one writer at a time; a single connection serializes
	// access at the Go level and avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	encrypted := false
	if encryptionKey != "" {
		// A wrong key surfaces on the first real query, not on Open.
		var probe int
		if err := conn.QueryRowContext(context.Background(), "SELECT 1").Scan(&probe); err != nil {
			conn.Close()
			return nil, errdefs.Transient("permission.OpenStore", err)
		}
		encrypted = true
		log.Info("grant store encryption enabled")
	}

	if _, err := conn.ExecContext(context.Background(), schema); err != nil {
		conn.Close()
		return nil, errdefs.Transient("permission.OpenStore", err)
	}
	return &Store{conn: conn, encrypted: encrypted}, nil
}

// IsEncrypted reports whether the store was opened with an encryption key.
func (s *Store) IsEncrypted() bool {
	return s.encrypted
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Upsert inserts or refreshes a persistent grant.
func (s *Store) Upsert(ctx context.Context, path string, op types.Operation) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO grants (path, operation, scope, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path, operation) DO UPDATE SET created_at = excluded.created_at`,
		path, string(op), string(types.ScopePersistent), time.Now().UTC())
	if err != nil {
		return errdefs.Transient("permission.Upsert", err)
	}
	return nil
}

// Get returns the persistent grant for the exact (path, operation) pair, or
// nil when none exists.
func (s *Store) Get(ctx context.Context, path string, op types.Operation) (*Grant, error) {
	g := Grant{Path: path, Operation: op, Scope: types.ScopePersistent}
	err := s.conn.QueryRowContext(ctx,
		`SELECT created_at FROM grants WHERE path = ? AND operation = ?`,
		path, string(op)).Scan(&g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Transient("permission.Get", err)
	}
	return &g, nil
}

// Delete removes the persistent grant for the pair, if present.
func (s *Store) Delete(ctx context.Context, path string, op types.Operation) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM grants WHERE path = ? AND operation = ?`, path, string(op))
	if err != nil {
		return errdefs.Transient("permission.Delete", err)
	}
	return nil
}

// List returns all persistent grants ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Grant, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT path, operation, created_at FROM grants ORDER BY created_at, id`)
	if err != nil {
		return nil, errdefs.Transient("permission.List", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		g := Grant{Scope: types.ScopePersistent}
		var op string
		if err := rows.Scan(&g.Path, &op, &g.CreatedAt); err != nil {
			return nil, errdefs.Transient("permission.List", err)
		}
		g.Operation = types.Operation(op)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Transient("permission.List", err)
	}
	return grants, nil
}
