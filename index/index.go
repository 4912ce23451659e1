// Package index implements the blob index:
// the authoritative table of blob identities,
// their lifecycle states,
// and their garbage-collection tags.
//
// The index lives in a SQL database.
// Engine differences are captured in a Dialect;
// the sqlite3, pg, and mysql subpackages supply one each.
package index

import (
	"context"
	"database/sql"
	stderrs "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bobg/sqlutil"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
)

// Dialect describes how to talk to a particular SQL engine.
type Dialect struct {
	// Schema holds the statements that create the blob_index table.
	// They must be idempotent.
	// The table has the columns
	//   id (integer primary key)
	//   name (unique byte string)
	//   state (small integer, see State)
	//   tag (small integer, nullable).
	Schema []string

	// Rebind rewrites a query written with ? placeholders
	// into the engine's placeholder style.
	// Nil means ? placeholders are native.
	Rebind func(string) string

	// FlushSQL, if non-empty, is executed by Index.Flush.
	FlushSQL string
}

// DollarRebind rewrites ? placeholders as $1, $2, ...
func DollarRebind(q string) string {
	var (
		buf strings.Builder
		n   int
	)
	for _, c := range q {
		if c == '?' {
			n++
			buf.WriteString("$" + strconv.Itoa(n))
			continue
		}
		buf.WriteRune(c)
	}
	return buf.String()
}

// Index is a blob index stored in a SQL database.
// It is meant to have a single owner:
// one blob.Store per index table.
type Index struct {
	db    *sql.DB
	d     Dialect
	descs *descPool
}

// Row is everything the index knows about one blob.
type Row struct {
	Desc  chunkstore.BlobDesc
	State State

	// Tag is meaningful only when Tagged is true.
	Tag    chunkstore.Tag
	Tagged bool
}

// New produces an Index using db for storage.
// It creates the blob_index table if it does not exist
// (if it does exist, it must have the schema described in Dialect),
// and it seeds the ID counter from the largest ID in the table.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Index, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, indexErr(err, "creating schema")
		}
	}

	x := &Index{db: db, d: d}

	var maxID sql.NullInt64
	if err := db.QueryRowContext(ctx, x.q(`SELECT MAX(id) FROM blob_index`)).Scan(&maxID); err != nil {
		return nil, indexErr(err, "finding largest blob id")
	}
	x.descs = newDescPool(maxID.Int64)

	return x, nil
}

// DB is the database holding the index.
func (x *Index) DB() *sql.DB {
	return x.db
}

func (x *Index) q(query string) string {
	if x.d.Rebind == nil {
		return query
	}
	return x.d.Rebind(query)
}

func indexErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &chunkstore.IndexError{Err: errors.Wrap(err, msg)}
}

func (x *Index) withTx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr(err, "beginning transaction")
	}
	if err = f(tx); err != nil {
		tx.Rollback()
		var merr chunkstore.MessageError
		if stderrs.As(err, &merr) {
			return err
		}
		return &chunkstore.IndexError{Err: err}
	}
	return indexErr(tx.Commit(), "committing transaction")
}

// Reserve allocates a new blob in the Reserved state.
// Its ID is larger than any the index has issued,
// and its name is chunkstore.BlobName of the ID.
func (x *Index) Reserve(ctx context.Context) (chunkstore.BlobDesc, error) {
	desc := x.descs.reserve()
	err := x.withTx(ctx, func(tx *sql.Tx) error {
		const q = `INSERT INTO blob_index (id, name, state) VALUES (?, ?, ?)`
		_, err := tx.ExecContext(ctx, x.q(q), desc.ID, desc.Name, Reserved)
		return errors.Wrapf(err, "reserving blob %d", desc.ID)
	})
	return desc, err
}

// InAir moves a blob from Reserved to InAir.
func (x *Index) InAir(ctx context.Context, desc chunkstore.BlobDesc) error {
	return x.transition(ctx, desc, Reserved, InAir)
}

// CommitDone moves a blob from InAir to Committed.
func (x *Index) CommitDone(ctx context.Context, desc chunkstore.BlobDesc) error {
	return x.transition(ctx, desc, InAir, Committed)
}

func (x *Index) transition(ctx context.Context, desc chunkstore.BlobDesc, from, to State) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		where, arg := x.where(desc)

		var state State
		err := tx.QueryRowContext(ctx, x.q(`SELECT state FROM blob_index WHERE `+where), arg).Scan(&state)
		if stderrs.Is(err, sql.ErrNoRows) {
			return chunkstore.MessageError(fmt.Sprintf("blob %s is not in the index", chunkstore.NameString(desc.Name)))
		}
		if err != nil {
			return errors.Wrapf(err, "reading state of blob %s", chunkstore.NameString(desc.Name))
		}
		if state != from {
			return chunkstore.MessageError(fmt.Sprintf("blob %s is %s, cannot move from %s to %s", chunkstore.NameString(desc.Name), state, from, to))
		}

		_, err = tx.ExecContext(ctx, x.q(`UPDATE blob_index SET state = ? WHERE `+where), to, arg)
		return errors.Wrapf(err, "setting state of blob %s to %s", chunkstore.NameString(desc.Name), to)
	})
}

// where selects a blob by ID if known, otherwise by name.
func (x *Index) where(desc chunkstore.BlobDesc) (string, interface{}) {
	if desc.ID != 0 {
		return "id = ?", desc.ID
	}
	return "name = ?", desc.Name
}

// Recover records that the backend holds a blob with the given name,
// e.g. one found while rebuilding the index from the backend.
// If the index has no such blob it is added as Committed;
// if it has one in an earlier state, it is moved to Committed.
// Recovering a committed blob does nothing.
func (x *Index) Recover(ctx context.Context, name []byte) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		var (
			id    int64
			state State
		)
		err := tx.QueryRowContext(ctx, x.q(`SELECT id, state FROM blob_index WHERE name = ?`), name).Scan(&id, &state)
		if err == nil {
			if state == Committed {
				return nil
			}
			_, err = tx.ExecContext(ctx, x.q(`UPDATE blob_index SET state = ? WHERE id = ?`), Committed, id)
			return errors.Wrapf(err, "committing recovered blob %s", chunkstore.NameString(name))
		}
		if !stderrs.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "looking up blob %s", chunkstore.NameString(name))
		}

		id, ok := chunkstore.BlobID(name)
		if ok {
			var n int
			err = tx.QueryRowContext(ctx, x.q(`SELECT COUNT(*) FROM blob_index WHERE id = ?`), id).Scan(&n)
			if err != nil {
				return errors.Wrapf(err, "checking for blob id %d", id)
			}
			ok = n == 0
		}
		if ok {
			x.descs.advance(id)
		} else {
			id = x.descs.reserve().ID
		}

		_, err = tx.ExecContext(ctx, x.q(`INSERT INTO blob_index (id, name, state) VALUES (?, ?, ?)`), id, name, Committed)
		return errors.Wrapf(err, "inserting recovered blob %s", chunkstore.NameString(name))
	})
}

// Tag sets the tag of one blob,
// selected by desc.ID if non-zero and by desc.Name otherwise.
// Tagging a blob the index does not hold does nothing.
func (x *Index) Tag(ctx context.Context, desc chunkstore.BlobDesc, tag chunkstore.Tag) error {
	where, arg := x.where(desc)
	_, err := x.db.ExecContext(ctx, x.q(`UPDATE blob_index SET tag = ? WHERE `+where), tag, arg)
	return indexErr(err, "tagging blob")
}

// Untag clears the tag of one blob.
func (x *Index) Untag(ctx context.Context, desc chunkstore.BlobDesc) error {
	where, arg := x.where(desc)
	_, err := x.db.ExecContext(ctx, x.q(`UPDATE blob_index SET tag = NULL WHERE `+where), arg)
	return indexErr(err, "untagging blob")
}

// TagAll sets the tag of every blob.
func (x *Index) TagAll(ctx context.Context, tag chunkstore.Tag) error {
	_, err := x.db.ExecContext(ctx, x.q(`UPDATE blob_index SET tag = ?`), tag)
	return indexErr(err, "tagging all blobs")
}

// ListByTag produces the blobs with the given tag, in ID order.
func (x *Index) ListByTag(ctx context.Context, tag chunkstore.Tag) ([]chunkstore.BlobDesc, error) {
	return x.list(ctx, `SELECT id, name FROM blob_index WHERE tag = ? ORDER BY id`, tag)
}

// ListByState produces the blobs in the given state, in ID order.
func (x *Index) ListByState(ctx context.Context, state State) ([]chunkstore.BlobDesc, error) {
	return x.list(ctx, `SELECT id, name FROM blob_index WHERE state = ? ORDER BY id`, state)
}

func (x *Index) list(ctx context.Context, q string, arg interface{}) ([]chunkstore.BlobDesc, error) {
	var result []chunkstore.BlobDesc
	err := sqlutil.ForQueryRows(ctx, x.db, x.q(q), arg, func(id int64, name []byte) {
		result = append(result, chunkstore.BlobDesc{ID: id, Name: name})
	})
	return result, indexErr(err, "listing blobs")
}

// Lookup gets the index row for the blob with the given name.
// It returns chunkstore.ErrNotFound if there is none.
func (x *Index) Lookup(ctx context.Context, name []byte) (Row, error) {
	var (
		row = Row{Desc: chunkstore.BlobDesc{Name: name}}
		tag sql.NullInt64
	)
	err := x.db.QueryRowContext(ctx, x.q(`SELECT id, state, tag FROM blob_index WHERE name = ?`), name).Scan(&row.Desc.ID, &row.State, &tag)
	if stderrs.Is(err, sql.ErrNoRows) {
		return Row{}, chunkstore.ErrNotFound
	}
	if err != nil {
		return Row{}, indexErr(err, "looking up blob")
	}
	row.Tag, row.Tagged = chunkstore.Tag(tag.Int64), tag.Valid
	return row, nil
}

// DeleteByTag removes every blob with the given tag from the index.
func (x *Index) DeleteByTag(ctx context.Context, tag chunkstore.Tag) error {
	_, err := x.db.ExecContext(ctx, x.q(`DELETE FROM blob_index WHERE tag = ?`), tag)
	return indexErr(err, "deleting tagged blobs")
}

// Delete removes one blob from the index.
func (x *Index) Delete(ctx context.Context, desc chunkstore.BlobDesc) error {
	where, arg := x.where(desc)
	_, err := x.db.ExecContext(ctx, x.q(`DELETE FROM blob_index WHERE `+where), arg)
	return indexErr(err, "deleting blob")
}

// Flush persists any metadata writes the engine has buffered.
func (x *Index) Flush(ctx context.Context) error {
	if x.d.FlushSQL == "" {
		return nil
	}
	_, err := x.db.ExecContext(ctx, x.d.FlushSQL)
	return indexErr(err, "flushing")
}

// Reset removes every blob from the index and restarts ID assignment.
// It is meant for tests.
func (x *Index) Reset(ctx context.Context) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM blob_index`)
	if err != nil {
		return indexErr(err, "resetting")
	}
	x.descs.reset()
	return nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}
