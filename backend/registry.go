// Package backend holds the registry of blob backends.
// Each backend subpackage registers a Factory for itself in an init function,
// so a program can build one from a config map
// by importing the subpackage for its side effects.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bobg/chunkstore"
)

// Factory builds a backend from its configuration.
type Factory func(context.Context, map[string]interface{}) (chunkstore.Backend, error)

var registry = make(map[string]Factory)

// Register makes a Factory available to Create under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds the backend registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (chunkstore.Backend, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Keys lists the registered backend keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nested builds the backend described by the "nested" entry of conf.
// Decorators like the lru and logging backends use it.
func Nested(ctx context.Context, conf map[string]interface{}) (chunkstore.Backend, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`missing "nested" parameter`)
	}
	typ, ok := nested["type"].(string)
	if !ok {
		return nil, fmt.Errorf(`nested config missing "type" parameter`)
	}
	return Create(ctx, typ, nested)
}

// List builds the backends described by the list at conf[key].
// A missing key produces an empty list.
// JSON configs decode such a list as []interface{},
// TOML configs (as an array of tables) as []map[string]interface{}.
func List(ctx context.Context, conf map[string]interface{}, key string) ([]chunkstore.Backend, error) {
	var confs []map[string]interface{}
	switch v := conf[key].(type) {
	case nil:
		return nil, nil
	case []map[string]interface{}:
		confs = v
	case []interface{}:
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s item %d is not a map", key, i)
			}
			confs = append(confs, m)
		}
	default:
		return nil, fmt.Errorf("%s parameter is not a list", key)
	}

	var result []chunkstore.Backend
	for i, c := range confs {
		typ, ok := c["type"].(string)
		if !ok {
			return nil, fmt.Errorf(`%s item %d missing "type" parameter`, key, i)
		}
		b, err := Create(ctx, typ, c)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, nil
}

// Int gets an integer parameter from conf.
// Config files decode numbers in different ways,
// so several representations are accepted.
func Int(conf map[string]interface{}, key string) (int, bool) {
	switch v := conf[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
