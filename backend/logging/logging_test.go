package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend/backendtest"
	"github.com/bobg/chunkstore/backend/mem"
)

func TestBackend(t *testing.T) {
	var (
		buf    bytes.Buffer
		logger = logrus.New()
	)
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	backendtest.Run(context.Background(), t, New(mem.New(), logrus.NewEntry(logger)))

	out := buf.String()
	for _, want := range []string{
		"op=store",
		"op=retrieve",
		"op=delete",
		"op=list",
		"name=" + chunkstore.NameString(chunkstore.BlobName(1)),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q", want)
		}
	}
}
