// Package sqlite3 implements a blob backend in a Sqlite table.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"strings"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
	"github.com/bobg/chunkstore/pool"
)

var _ chunkstore.Lister = &Backend{}

// Backend is a Sqlite-based blob backend.
// It spreads its work over a fixed set of connections.
type Backend struct {
	db    *sql.DB
	conns *pool.Pool[*sql.Conn]
	n     int
}

// Schema is the SQL that New executes.
// It creates the `blobs` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  name BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

// DefaultConns is the number of connections New uses when given n < 1.
const DefaultConns = 4

// New produces a new Backend using db for storage,
// with at most n operations in progress at once.
//
// Each of the n connections is a separate Sqlite connection.
// For an in-memory database every connection would see its own private database,
// so use Open, which uses a single connection for in-memory DSNs.
func New(ctx context.Context, db *sql.DB, n int) (*Backend, error) {
	if n < 1 {
		n = DefaultConns
	}

	conns := make([]*sql.Conn, 0, n)
	closeAll := func() {
		for _, c := range conns {
			c.Close()
		}
	}
	for i := 0; i < n; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "getting connection")
		}
		conns = append(conns, conn)
	}

	if _, err := conns[0].ExecContext(ctx, Schema); err != nil {
		closeAll()
		return nil, errors.Wrap(err, "creating schema")
	}

	return &Backend{db: db, conns: pool.New(conns), n: n}, nil
}

// Open opens the Sqlite database named by the DSN conn
// and produces a Backend with n connections to it.
// If conn names an in-memory database, n is taken to be 1.
func Open(ctx context.Context, conn string, n int) (*Backend, error) {
	if isMemory(conn) {
		n = 1
	}
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, errors.Wrap(err, "opening db")
	}
	b, err := New(ctx, db, n)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func isMemory(conn string) bool {
	return conn == ":memory:" || strings.HasPrefix(conn, "file::memory:") || strings.Contains(conn, "mode=memory")
}

// Close releases b's connections and closes its database.
// It waits for operations in progress.
func (b *Backend) Close() error {
	for i := 0; i < b.n; i++ {
		g, err := b.conns.Lock()
		if err != nil {
			break
		}
		g.Value().Close()
	}
	return b.db.Close()
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	const q = `INSERT OR REPLACE INTO blobs (name, data) VALUES ($1, $2)`

	return b.conns.With(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, q, name, data)
		return errors.Wrap(err, "inserting blob")
	})
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	const q = `SELECT data FROM blobs WHERE name = $1`

	var data []byte
	err := b.conns.With(func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, q, name).Scan(&data)
		if stderrs.Is(err, sql.ErrNoRows) {
			return chunkstore.ErrNotFound
		}
		return errors.Wrap(err, "querying blob")
	})
	return data, err
}

// Delete implements chunkstore.Backend.Delete.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	const q = `DELETE FROM blobs WHERE name = $1`

	return b.conns.With(func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, q, name)
		return errors.Wrap(err, "deleting blob")
	})
}

// List implements chunkstore.Lister.List.
// The names are collected before f is called,
// so f may use b.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	const q = `SELECT name FROM blobs ORDER BY name`

	var names [][]byte
	err := b.conns.With(func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, q)
		if err != nil {
			return errors.Wrap(err, "querying names")
		}
		defer rows.Close()

		for rows.Next() {
			var name []byte
			if err = rows.Scan(&name); err != nil {
				return errors.Wrap(err, "scanning name")
			}
			names = append(names, name)
		}
		return errors.Wrap(rows.Err(), "iterating over names")
	})
	if err != nil {
		return err
	}

	for _, name := range names {
		if err = f(name); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	backend.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		n, _ := backend.Int(conf, "conns")
		return Open(ctx, conn, n)
	})
}
