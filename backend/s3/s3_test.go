package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore/backend/backendtest"
)

const (
	endpointVar = "CHUNKSTORE_S3_TESTING_ENDPOINT"
	bucketVar   = "CHUNKSTORE_S3_TESTING_BUCKET"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("other"), false},
		{awserr.New("NoSuchKey", "no such key", nil), true},
		{awserr.New("NotFound", "not found", nil), true},
		{awserr.New("AccessDenied", "access denied", nil), false},
		{errors.Wrap(awserr.New("NoSuchKey", "no such key", nil), "wrapped"), true},
	}
	for i, c := range cases {
		if got := isNotFound(c.err); got != c.want {
			t.Errorf("case %d (%v): got %v, want %v", i, c.err, got, c.want)
		}
	}
}

func TestKey(t *testing.T) {
	b := &Backend{Prefix: "blobs/"}
	if got := b.key([]byte{0xab, 0xcd}); got != "blobs/abcd" {
		t.Errorf("got %s, want blobs/abcd", got)
	}
}

// To run against a local Minio server:
//
//	env AWS_ACCESS_KEY_ID=... AWS_SECRET_ACCESS_KEY=... \
//	  CHUNKSTORE_S3_TESTING_ENDPOINT=http://localhost:9000 \
//	  CHUNKSTORE_S3_TESTING_BUCKET=test go test -run TestBackend
func TestBackend(t *testing.T) {
	var (
		endpoint = os.Getenv(endpointVar)
		bucket   = os.Getenv(bucketVar)
	)
	if bucket == "" {
		t.Skipf("to run TestBackend, set %s to the name of an existing bucket (and optionally %s)", bucketVar, endpointVar)
	}

	sess, err := Session(endpoint, "us-east-1")
	if err != nil {
		t.Fatal(err)
	}

	var r [8]byte
	if _, err = rand.Read(r[:]); err != nil {
		t.Fatal(err)
	}
	prefix := hex.EncodeToString(r[:]) + "/"

	backendtest.Run(context.Background(), t, New(bucket, prefix, sess))
}
