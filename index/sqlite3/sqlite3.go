// Package sqlite3 supplies the Sqlite dialect of the blob index.
package sqlite3

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore/index"
)

// Dialect is the Sqlite dialect of the blob index.
var Dialect = index.Dialect{
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS blob_index (
  id INTEGER PRIMARY KEY NOT NULL,
  name BLOB UNIQUE NOT NULL,
  state INTEGER NOT NULL,
  tag INTEGER
)`,
		`CREATE INDEX IF NOT EXISTS blob_index_tag ON blob_index (tag)`,
		`CREATE INDEX IF NOT EXISTS blob_index_state ON blob_index (state)`,
	},
	FlushSQL: `PRAGMA wal_checkpoint(PASSIVE)`,
}

// New produces an index stored in db.
func New(ctx context.Context, db *sql.DB) (*index.Index, error) {
	return index.New(ctx, db, Dialect)
}

// Open opens the Sqlite database named by conn
// and produces an index stored in it.
// An in-memory database is private to one connection,
// so for one the pool is limited to a single connection.
func Open(ctx context.Context, conn string) (*index.Index, error) {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, errors.Wrap(err, "opening db")
	}
	if conn == ":memory:" || strings.HasPrefix(conn, "file::memory:") || strings.Contains(conn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	x, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return x, nil
}

func init() {
	index.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (*index.Index, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		return Open(ctx, conn)
	})
}
