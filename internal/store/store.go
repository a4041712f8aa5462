package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/frontdesk/models"
	_ "modernc.org/sqlite"
)

// Collection is the document store capability backing help requests and knowledge.
// Records are JSON documents keyed by (collection, id).
type Collection interface {
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Put(ctx context.Context, collection, id string, record any) error
	QueryByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error)
	ListAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	// Update applies fn to the current document and stores the result only if
	// nobody wrote the document in between. fn may be called more than once.
	Update(ctx context.Context, collection, id string, fn func(current json.RawMessage) (json.RawMessage, error)) error
}

// Dialect selects SQL flavour differences between Postgres and SQLite.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// maxUpdateAttempts bounds optimistic retries when concurrent writers collide.
const maxUpdateAttempts = 5

// ErrConflict is returned when Update keeps losing the version race.
var ErrConflict = errors.New("document update conflict")

// Store is a SQL-backed Collection using a single documents table.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// NewWithDSN opens a Postgres-backed store. Schema is managed by migrations.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, Dialect: DialectPostgres}, nil
}

// NewSQLite opens (or creates) a SQLite-backed store and ensures its schema.
// Use ":memory:" for a throwaway database.
func NewSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent and serialises writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{DB: db, Dialect: DialectSQLite}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  body TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (collection, id)
);`

func (s *Store) ensureSchema(ctx context.Context) error {
	if s.Dialect != DialectSQLite {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, sqliteSchema)
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// q rewrites Postgres placeholders for SQLite. Queries use each placeholder once, in order.
func (s *Store) q(query string) string {
	if s.Dialect == DialectSQLite {
		return placeholderRe.ReplaceAllString(query, "?")
	}
	return query
}

func (s *Store) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var body []byte
	err := s.DB.QueryRowContext(ctx, s.q(`SELECT body FROM documents WHERE collection=$1 AND id=$2`), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (s *Store) Put(ctx context.Context, collection, id string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = s.DB.ExecContext(ctx, s.q(`
INSERT INTO documents (collection, id, body, version, created_at, updated_at)
VALUES ($1,$2,$3,1,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT (collection, id) DO UPDATE SET
  body = EXCLUDED.body,
  version = documents.version + 1,
  updated_at = CURRENT_TIMESTAMP`), collection, id, string(body))
	return err
}

func (s *Store) QueryByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	query := `SELECT body FROM documents WHERE collection=$1 AND body->>($2::text) = $3 ORDER BY created_at, id`
	if s.Dialect == DialectSQLite {
		query = `SELECT body FROM documents WHERE collection=$1 AND json_extract(body, '$.' || $2) = $3 ORDER BY created_at, id`
	}
	rows, err := s.DB.QueryContext(ctx, s.q(query), collection, field, value)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows)
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`SELECT body FROM documents WHERE collection=$1 ORDER BY created_at, id`), collection)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows)
}

func (s *Store) Update(ctx context.Context, collection, id string, fn func(current json.RawMessage) (json.RawMessage, error)) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var body []byte
		var version int64
		err := s.DB.QueryRowContext(ctx, s.q(`SELECT body, version FROM documents WHERE collection=$1 AND id=$2`), collection, id).Scan(&body, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := fn(json.RawMessage(body))
		if err != nil {
			return err
		}
		res, err := s.DB.ExecContext(ctx, s.q(`
UPDATE documents SET body=$1, version=version+1, updated_at=CURRENT_TIMESTAMP
WHERE collection=$2 AND id=$3 AND version=$4`), string(next), collection, id, version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
}

func scanBodies(rows *sql.Rows) ([]json.RawMessage, error) {
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(body))
	}
	return out, rows.Err()
}
