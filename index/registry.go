package index

import (
	"context"
	"fmt"
)

// Factory opens an Index from configuration parameters.
type Factory func(context.Context, map[string]interface{}) (*Index, error)

var registry = make(map[string]Factory)

// Register makes a Factory available to Create under the given key.
// Dialect subpackages call this from init.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create opens the Index registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (*Index, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in index registry", key)
	}
	return f(ctx, conf)
}
