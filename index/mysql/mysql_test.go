package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/bobg/chunkstore/index"
	"github.com/bobg/chunkstore/index/indextest"
)

const connVar = "CHUNKSTORE_MYSQL_TESTING_CONN"

func TestIndex(t *testing.T) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid MySQL DSN", t.Name(), connVar)
	}

	var (
		ctx     = context.Background()
		indexes []*index.Index
	)
	defer func() {
		for _, x := range indexes {
			x.Close()
		}
	}()

	indextest.Run(ctx, t, func() *index.Index {
		x, err := Open(ctx, connstr)
		if err != nil {
			t.Fatal(err)
		}
		indexes = append(indexes, x)
		return x
	})
}
