// Command chunkstore stores and retrieves files in an aggregating chunk store.
//
// Usage:
//
//	chunkstore [-config FILE] [-v] [-scan] SUBCOMMAND [ARGS]
//
// Subcommands are put, get, flush, tag, tag-all, delete-by-tag, recover, list, and serve.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"

	"github.com/bobg/subcmd"
	"github.com/sirupsen/logrus"

	"github.com/bobg/chunkstore/config"
)

type maincmd struct {
	st  *config.Stack
	log *logrus.Logger
	in  io.Reader
	out io.Writer
}

func main() {
	var (
		confPath = flag.String("config", "chunkstore.json", "path to config file")
		verbose  = flag.Bool("v", false, "verbose logging")
		scan     = flag.Bool("scan", false, "scan the backend at startup (use with recover after losing the index)")
	)
	flag.Parse()

	log := logrus.New()

	conf, err := config.Load(*confPath)
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}
	if *verbose {
		conf["log_level"] = "debug"
	}
	if *scan {
		conf["scan"] = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := config.Open(ctx, conf)
	if err != nil {
		log.WithError(err).Fatal("opening store")
	}

	err = subcmd.Run(ctx, maincmd{st: st, log: st.Logger, in: os.Stdin, out: os.Stdout}, flag.Args())
	if cerr := st.Close(); cerr != nil {
		st.Logger.WithError(cerr).Error("closing index")
	}
	if err != nil {
		st.Logger.WithError(err).Fatal("command failed")
	}
}

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"delete-by-tag", c.deleteByTag, nil,
		"flush", c.flush, nil,
		"get", c.get, subcmd.Params(
			"ref", subcmd.String, "", "hex root ref to get",
			"name", subcmd.String, "", "saved root name to get",
		),
		"list", c.list, subcmd.Params(
			"state", subcmd.String, "", "list index entries in this state (reserved, in-air, committed) instead of backend blobs",
			"tag", subcmd.String, "", "list index entries with this tag instead of backend blobs",
		),
		"put", c.put, subcmd.Params(
			"name", subcmd.String, "", "name to save the root ref under",
		),
		"recover", c.recover, subcmd.Params(
			"ref", subcmd.String, "", "hex root ref of the tree to recover",
			"name", subcmd.String, "", "saved root name of the tree to recover",
		),
		"serve", c.serve, subcmd.Params(
			"addr", subcmd.String, ":9090", "listen address",
		),
		"tag", c.tag, subcmd.Params(
			"ref", subcmd.String, "", "hex root ref of the tree to tag",
			"name", subcmd.String, "", "saved root name of the tree to tag",
		),
		"tag-all", c.tagAll, nil,
	)
}
