package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ctfbuddy.ai/internal/persistence/indexdb"
)

func openIndex(dataDir, dbPath string) (*indexdb.Reader, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "index", "flags.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return indexdb.OpenReader(path)
}

func historyCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/flags.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	action := fs.String("action", "", "action filter (e.g. FLAG_CARRIER_QUIT)")
	actor := fs.String("actor", "", "actor uuid filter")
	asJSON := fs.Bool("json", false, "print JSON lines")
	_ = fs.Parse(args)

	rd, err := openIndex(*dataDir, *dbPath)
	if err != nil {
		return err
	}
	defer rd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	evs, err := rd.History(ctx, indexdb.HistoryQuery{Action: *action, Actor: *actor, Limit: *limit})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, ev := range evs {
		if *asJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, formatEvent(ev.Tick, ev.Action, ev.Actor, ev.Realm, ev.Pos, ev.Reason))
	}
	return nil
}

func snapshotsCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/flags.sqlite)")
	_ = fs.Parse(args)

	rd, err := openIndex(*dataDir, *dbPath)
	if err != nil {
		return err
	}
	defer rd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recs, err := rd.Snapshots(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%-10s tick=%-8d entities=%-5d flags=%d %s\n", r.Realm, r.Tick, r.Entities, r.Flags, r.Path)
	}
	return nil
}
