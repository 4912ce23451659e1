package gcs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/bobg/chunkstore/backend/backendtest"
)

const (
	credsVar = "CHUNKSTORE_GCS_TESTING_CREDS"
	projVar  = "CHUNKSTORE_GCS_TESTING_PROJECT"
)

func TestObjName(t *testing.T) {
	if got := objName([]byte{0, 0, 0, 0, 0, 0, 1, 0}); got != "b/0000000000000100" {
		t.Errorf("got %s", got)
	}
}

func TestBackend(t *testing.T) {
	var (
		creds     = os.Getenv(credsVar)
		projectID = os.Getenv(projVar)
	)
	if creds == "" || projectID == "" {
		t.Skipf("to run TestBackend, set %s to the name of a credentials file and %s to a project ID", credsVar, projVar)
	}

	var r [12]byte
	if _, err := rand.Read(r[:]); err != nil {
		t.Fatal(err)
	}
	bucketName := "chunkstore-test-" + hex.EncodeToString(r[:])

	ctx := context.Background()

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	bucket := client.Bucket(bucketName)
	if err = bucket.Create(ctx, projectID, nil); err != nil {
		t.Fatalf("creating bucket %s in project %s: %s", bucketName, projectID, err)
	}
	t.Cleanup(func() {
		if err := bucket.Delete(ctx); err != nil {
			t.Logf("deleting bucket %s: %s", bucketName, err)
		}
	})

	backendtest.Run(ctx, t, New(bucket))
}
