package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/bobg/chunkstore/backend/backendtest"
)

const connVar = "CHUNKSTORE_PG_TESTING_CONN"

func TestBackend(t *testing.T) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	b, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = db.ExecContext(ctx, `DELETE FROM blobs`); err != nil {
		t.Fatal(err)
	}

	backendtest.Run(ctx, t, b)
}
