// Package config builds a chunk store from a configuration file.
//
// A configuration is a map with these keys:
//
//	backend        map with a "type" key naming a registered backend, plus its parameters
//	index          map with a "type" key naming a registered index, plus its parameters
//	max_blob_size  integer, default 4 MiB
//	log_level      a logrus level name, default "info"
//	scan           boolean; if true, the store starts with blob.WithScan
//
// Files ending in .toml are decoded as TOML, everything else as JSON.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunkstore"
	"github.com/bobg/chunkstore/backend"
	"github.com/bobg/chunkstore/blob"
	"github.com/bobg/chunkstore/index"

	_ "github.com/bobg/chunkstore/backend/file"
	_ "github.com/bobg/chunkstore/backend/gcs"
	_ "github.com/bobg/chunkstore/backend/logging"
	_ "github.com/bobg/chunkstore/backend/lru"
	_ "github.com/bobg/chunkstore/backend/mem"
	_ "github.com/bobg/chunkstore/backend/pg"
	_ "github.com/bobg/chunkstore/backend/replica"
	_ "github.com/bobg/chunkstore/backend/rpc"
	_ "github.com/bobg/chunkstore/backend/s3"
	_ "github.com/bobg/chunkstore/backend/sqlite3"
	_ "github.com/bobg/chunkstore/index/mysql"
	_ "github.com/bobg/chunkstore/index/pg"
	_ "github.com/bobg/chunkstore/index/sqlite3"
)

// DefaultMaxBlobSize is the blob size used when the config does not give one.
const DefaultMaxBlobSize = 4 << 20

// Load reads a configuration file.
func Load(path string) (map[string]interface{}, error) {
	var conf map[string]interface{}

	if filepath.Ext(path) == ".toml" {
		if _, err := toml.DecodeFile(path, &conf); err != nil {
			return nil, errors.Wrapf(err, "decoding config file %s", path)
		}
		return conf, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", path)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err = dec.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", path)
	}
	return conf, nil
}

// Stack is everything Open builds.
// Closing it stops the store and closes the index.
type Stack struct {
	Backend chunkstore.Backend
	Index   *index.Index
	Store   *blob.Store
	Logger  *logrus.Logger
}

// Close shuts down the store, then the index,
// then the backend if it has a Close method.
func (s *Stack) Close() error {
	s.Store.Close()
	err := s.Index.Close()
	if c, ok := s.Backend.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Open builds the backend, index, and running store that conf describes.
// Additional blob options are passed to blob.New.
func Open(ctx context.Context, conf map[string]interface{}, opts ...blob.Option) (*Stack, error) {
	logger, err := Logger(conf)
	if err != nil {
		return nil, err
	}

	bconf, btype, err := section(conf, "backend")
	if err != nil {
		return nil, err
	}
	b, err := backend.Create(ctx, btype, bconf)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s backend", btype)
	}

	iconf, itype, err := section(conf, "index")
	if err != nil {
		return nil, err
	}
	idx, err := index.Create(ctx, itype, iconf)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s index", itype)
	}

	maxBlobSize := DefaultMaxBlobSize
	if _, ok := conf["max_blob_size"]; ok {
		maxBlobSize, ok = backend.Int(conf, "max_blob_size")
		if !ok {
			idx.Close()
			return nil, fmt.Errorf("bad max_blob_size %v", conf["max_blob_size"])
		}
	}

	entry := logger.WithFields(logrus.Fields{"backend": btype, "index": itype})
	opts = append([]blob.Option{blob.WithLogger(entry)}, opts...)
	if scan, _ := conf["scan"].(bool); scan {
		opts = append(opts, blob.WithScan())
	}

	s, err := blob.New(ctx, idx, b, maxBlobSize, opts...)
	if err != nil {
		idx.Close()
		return nil, errors.Wrap(err, "starting store")
	}

	return &Stack{Backend: b, Index: idx, Store: s, Logger: logger}, nil
}

// Logger builds a logrus logger at the level conf names in "log_level".
func Logger(conf map[string]interface{}) (*logrus.Logger, error) {
	logger := logrus.New()
	if s, ok := conf["log_level"].(string); ok {
		level, err := logrus.ParseLevel(s)
		if err != nil {
			return nil, errors.Wrap(err, "parsing log_level")
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

func section(conf map[string]interface{}, key string) (map[string]interface{}, string, error) {
	sub, ok := conf[key].(map[string]interface{})
	if !ok {
		return nil, "", fmt.Errorf("config missing %q section", key)
	}
	typ, ok := sub["type"].(string)
	if !ok {
		return nil, "", fmt.Errorf("%s config missing \"type\" parameter", key)
	}
	return sub, typ, nil
}
