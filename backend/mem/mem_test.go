package mem

import (
	"context"
	"testing"

	"github.com/bobg/chunkstore/backend/backendtest"
)

func TestBackend(t *testing.T) {
	backendtest.Run(context.Background(), t, New())
}

func TestAllNames(t *testing.T) {
	backendtest.AllNames(context.Background(), t, func() backendtest.Lister { return New() })
}
