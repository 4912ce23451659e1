package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bobg/subcmd"
	"github.com/google/go-cmp/cmp"

	"github.com/bobg/chunkstore/config"
)

func TestSubcmds(t *testing.T) {
	var (
		c    maincmd
		want = []string{"delete-by-tag", "flush", "get", "list", "put", "recover", "serve", "tag", "tag-all"}
		got  []string
	)
	cmds := c.Subcmds()
	for _, name := range want {
		if cmd, ok := cmds[name]; !ok || cmd.F == nil {
			continue
		}
		got = append(got, name)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
	if len(cmds) != len(want) {
		t.Errorf("got %d subcommands, want %d", len(cmds), len(want))
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	st, err := config.Open(ctx, map[string]interface{}{
		"backend":       map[string]interface{}{"type": "mem"},
		"index":         map[string]interface{}{"type": "sqlite3", "conn": ":memory:"},
		"max_blob_size": 256,
		"log_level":     "warning",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	text := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 100)

	run := func(in string, args ...string) (string, error) {
		out := new(bytes.Buffer)
		c := maincmd{st: st, log: st.Logger, in: strings.NewReader(in), out: out}
		err := subcmd.Run(ctx, c, args)
		return out.String(), err
	}

	out, err := run(text, "put", "-name", "fox")
	if err != nil {
		t.Fatal(err)
	}
	refhex := strings.TrimSpace(out)
	if refhex == "" {
		t.Fatal("put printed no ref")
	}

	if _, err = run("", "flush"); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{{"get", "-name", "fox"}, {"get", "-ref", refhex}} {
		got, err := run("", args...)
		if err != nil {
			t.Fatalf("%v: %s", args, err)
		}
		if got != text {
			t.Errorf("%v: got %d bytes, want %d", args, len(got), len(text))
		}
	}

	if _, err = run("", "tag", "-name", "fox", "will-delete"); err != nil {
		t.Fatal(err)
	}
	out, err = run("", "list", "-tag", "will-delete")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("no blobs listed with will-delete after tagging")
	}

	out, err = run("", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "named fox\n") {
		t.Errorf("backend listing lacks named root:\n%s", out)
	}

	if _, err = run("", "tag", "-name", "fox"); err == nil {
		t.Error("tag without a TAG argument succeeded")
	}
	if _, err = run("", "get", "-name", "fox", "-ref", refhex); err == nil {
		t.Error("get with both -name and -ref succeeded")
	}
	if _, err = run("", "list", "-state", "committed", "-tag", "will-delete"); err == nil {
		t.Error("list with both -state and -tag succeeded")
	}
	if _, err = run("", "tag-all"); err == nil {
		t.Error("tag-all without a TAG argument succeeded")
	}
	if _, err = run("", "frobnicate"); !errors.Is(err, subcmd.ErrUnknown) {
		t.Errorf("got %v for an unknown subcommand, want ErrUnknown", err)
	}
}
