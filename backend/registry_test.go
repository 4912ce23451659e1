package backend

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bobg/chunkstore"
)

type nopBackend struct{}

func (nopBackend) Store(context.Context, []byte, []byte) error { return nil }
func (nopBackend) Retrieve(context.Context, []byte) ([]byte, error) {
	return nil, chunkstore.ErrNotFound
}
func (nopBackend) Delete(context.Context, []byte) error { return nil }

func TestRegistry(t *testing.T) {
	Register("nop", func(context.Context, map[string]interface{}) (chunkstore.Backend, error) {
		return nopBackend{}, nil
	})

	ctx := context.Background()
	if _, err := Create(ctx, "nop", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(ctx, "bogus", nil); err == nil {
		t.Error("got no error creating an unregistered backend")
	}

	conf := map[string]interface{}{
		"nested": map[string]interface{}{"type": "nop"},
	}
	if _, err := Nested(ctx, conf); err != nil {
		t.Fatal(err)
	}
	if _, err := Nested(ctx, map[string]interface{}{}); err == nil {
		t.Error("got no error for config without nested backend")
	}

	found := false
	for _, k := range Keys() {
		if k == "nop" {
			found = true
		}
	}
	if !found {
		t.Errorf("nop not among registered keys %v", Keys())
	}
}

func TestList(t *testing.T) {
	Register("nop", func(context.Context, map[string]interface{}) (chunkstore.Backend, error) {
		return nopBackend{}, nil
	})

	ctx := context.Background()
	nop := map[string]interface{}{"type": "nop"}

	cases := []struct {
		name    string
		val     interface{}
		want    int
		wantErr bool
	}{
		{"missing", nil, 0, false},
		{"json", []interface{}{nop, nop}, 2, false},
		{"toml", []map[string]interface{}{nop}, 1, false},
		{"not a list", "nop", 0, true},
		{"not a map", []interface{}{"nop"}, 0, true},
		{"no type", []interface{}{map[string]interface{}{}}, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conf := map[string]interface{}{}
			if c.val != nil {
				conf["list"] = c.val
			}
			got, err := List(ctx, conf, "list")
			if c.wantErr {
				if err == nil {
					t.Error("got no error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != c.want {
				t.Errorf("got %d backends, want %d", len(got), c.want)
			}
		})
	}
}

func TestInt(t *testing.T) {
	conf := map[string]interface{}{
		"a": 7,
		"b": int64(8),
		"c": float64(9),
		"d": json.Number("10"),
		"e": "eleven",
	}
	cases := []struct {
		key    string
		want   int
		wantOK bool
	}{
		{"a", 7, true},
		{"b", 8, true},
		{"c", 9, true},
		{"d", 10, true},
		{"e", 0, false},
		{"f", 0, false},
	}
	for _, c := range cases {
		got, ok := Int(conf, c.key)
		if got != c.want || ok != c.wantOK {
			t.Errorf("Int(%s): got %d, %v; want %d, %v", c.key, got, ok, c.want, c.wantOK)
		}
	}
}
