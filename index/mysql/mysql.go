// Package mysql supplies the MySQL dialect of the blob index.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore/index"
)

// Dialect is the MySQL dialect of the blob index.
// MySQL has no CREATE INDEX IF NOT EXISTS,
// so the secondary indexes are part of the table definition.
var Dialect = index.Dialect{
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS blob_index (
  id BIGINT PRIMARY KEY NOT NULL,
  name VARBINARY(255) UNIQUE NOT NULL,
  state TINYINT NOT NULL,
  tag TINYINT,
  INDEX blob_index_tag (tag),
  INDEX blob_index_state (state)
)`,
	},
}

// New produces an index stored in db.
func New(ctx context.Context, db *sql.DB) (*index.Index, error) {
	return index.New(ctx, db, Dialect)
}

// Open connects to the MySQL database named by the DSN conn
// and produces an index stored in it.
func Open(ctx context.Context, conn string) (*index.Index, error) {
	db, err := sql.Open("mysql", conn)
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
	index.Register("mysql", func(ctx context.Context, conf map[string]interface{}) (*index.Index, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		return Open(ctx, conn)
	})
}
