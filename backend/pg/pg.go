// Package pg implements a blob backend in a Postgresql table.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend is a Postgresql-based blob backend.
type Backend struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  name BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
);
`

// New produces a new Backend using db for storage.
func New(ctx context.Context, db *sql.DB) (*Backend, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Backend{db: db}, errors.Wrap(err, "creating schema")
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	const q = `INSERT INTO blobs (name, data) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET data = $2`
	_, err := b.db.ExecContext(ctx, q, name, data)
	return errors.Wrap(err, "inserting blob")
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	const q = `SELECT data FROM blobs WHERE name = $1`

	var data []byte
	err := b.db.QueryRowContext(ctx, q, name).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, chunkstore.ErrNotFound
	}
	return data, errors.Wrap(err, "querying blob")
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	const q = `DELETE FROM blobs WHERE name = $1`
	_, err := b.db.ExecContext(ctx, q, name)
	return errors.Wrap(err, "deleting blob")
}

// List implements chunkstore.Lister.List.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	const q = `SELECT name FROM blobs ORDER BY name`
	return sqlutil.ForQueryRows(ctx, b.db, q, func(name []byte) error {
		return f(name)
	})
}

func init() {
	backend.Register("pg", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
