// Package pg supplies the Postgresql dialect of the blob index.
package pg

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore/index"
)

// Dialect is the Postgresql dialect of the blob index.
var Dialect = index.Dialect{
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS blob_index (
  id BIGINT PRIMARY KEY NOT NULL,
  name BYTEA UNIQUE NOT NULL,
  state SMALLINT NOT NULL,
  tag SMALLINT
)`,
		`CREATE INDEX IF NOT EXISTS blob_index_tag ON blob_index (tag)`,
		`CREATE INDEX IF NOT EXISTS blob_index_state ON blob_index (state)`,
	},
	Rebind: index.DollarRebind,
}

// New produces an index stored in db.
func New(ctx context.Context, db *sql.DB) (*index.Index, error) {
	return index.New(ctx, db, Dialect)
}

// Open connects to the Postgresql database described by conn
// and produces an index stored in it.
func Open(ctx context.Context, conn string) (*index.Index, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, errors.Wrap(err, "opening db")
	}
	x, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return x, nil
}

func init() {
	index.Register("pg", func(ctx context.Context, conf map[string]interface{}) (*index.Index, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		return Open(ctx, conn)
	})
}
