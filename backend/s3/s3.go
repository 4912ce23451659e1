// Package s3 implements a blob backend on AWS S3,
// or any service with the same API.
package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
)

var _ chunkstore.Lister = &Backend{}

// Backend is an S3-based blob backend.
// Each blob is an object in Bucket
// whose key is Prefix followed by the hex encoding of the blob name.
// This allows one bucket to hold more than one backend.
type Backend struct {
	svc    *s3.S3
	Bucket string
	Prefix string
}

// New produces a new Backend.
// The authorization method and credentials in the session are used for all accesses.
func New(bucket, prefix string, sess *session.Session) *Backend {
	return &Backend{
		svc:    s3.New(sess),
		Bucket: bucket,
		Prefix: prefix,
	}
}

func (b *Backend) key(name []byte) string {
	return b.Prefix + hex.EncodeToString(name)
}

// Store implements chunkstore.Backend.Store.
func (b *Backend) Store(ctx context.Context, name, data []byte) error {
	key := b.key(name)
	_, err := b.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "putting object %s", key)
}

// Retrieve implements chunkstore.Backend.Retrieve.
func (b *Backend) Retrieve(ctx context.Context, name []byte) ([]byte, error) {
	key := b.key(name)
	out, err := b.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, chunkstore.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting object %s", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	return data, errors.Wrapf(err, "reading object %s", key)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !stderrs.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

// Delete implements chunkstore.Backend.Delete.
// S3 does not report deletions of absent keys as errors.
func (b *Backend) Delete(ctx context.Context, name []byte) error {
	key := b.key(name)
	_, err := b.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "deleting object %s", key)
}

// List implements chunkstore.Lister.List.
// Only keys with the backend's Prefix are considered.
func (b *Backend) List(ctx context.Context, f func([]byte) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(b.Prefix),
	}

	var ferr error
	err := b.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, item := range page.Contents {
			key := aws.StringValue(item.Key)
			name, err := hex.DecodeString(strings.TrimPrefix(key, b.Prefix))
			if err != nil {
				// Not one of ours.
				continue
			}
			if ferr = f(name); ferr != nil {
				return false
			}
		}
		return !lastPage
	})
	if ferr != nil {
		return ferr
	}
	return errors.Wrap(err, "listing objects")
}

// Session produces an AWS session for the given endpoint and region.
// An empty endpoint means AWS itself.
// A non-empty one, such as a local Minio server, is addressed path-style.
func Session(endpoint, region string) (*session.Session, error) {
	conf := &aws.Config{}
	if region != "" {
		conf.Region = aws.String(region)
	}
	if endpoint != "" {
		conf.Endpoint = aws.String(endpoint)
		conf.S3ForcePathStyle = aws.Bool(true)
		if strings.HasPrefix(endpoint, "http://") {
			conf.DisableSSL = aws.Bool(true)
		}
	}
	sess, err := session.NewSession(conf)
	return sess, errors.Wrap(err, "creating AWS session")
}

func init() {
	backend.Register("s3", func(_ context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
		bucket, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		var (
			prefix, _   = conf["prefix"].(string)
			endpoint, _ = conf["endpoint"].(string)
			region, _   = conf["region"].(string)
		)
		if region == "" {
			region = "us-east-1"
		}
		sess, err := Session(endpoint, region)
		if err != nil {
			return nil, err
		}
		return New(bucket, prefix, sess), nil
	})
}
