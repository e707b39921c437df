package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ctfbuddy.ai/internal/ctf/marker"
	persistlog "ctfbuddy.ai/internal/persistence/log"
	"ctfbuddy.ai/internal/persistence/snapshot"
	"ctfbuddy.ai/internal/sim/world"
)

const usage = `usage: admin <command> [flags]

commands:
  history    flag events from the sqlite index
  snapshots  latest indexed snapshot per realm
  snapshot   flags found in a region snapshot file
  audit      flag events from the JSONL audit log
  state      live server state (admin http)
  save       ask the server to save every realm now (admin http)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "history":
		err = historyCmd(os.Stdout, os.Args[2:])
	case "snapshots":
		err = snapshotsCmd(os.Stdout, os.Args[2:])
	case "snapshot":
		err = snapshotCmd(os.Stdout, os.Args[2:])
	case "audit":
		err = auditCmd(os.Stdout, os.Args[2:])
	case "state":
		err = stateCmd(os.Stdout, os.Args[2:])
	case "save":
		err = saveCmd(os.Stdout, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// flagLocation is one place a snapshot holds the flag.
type flagLocation struct {
	Where  string // ENTITY, ITEM, SLOT:<name>, INVENTORY, INTAKE
	Entity string
	Type   string
	Pos    [3]int
}

func (l flagLocation) String() string {
	return fmt.Sprintf("%-14s %-36s %-18s %d,%d,%d", l.Where, l.Entity, l.Type, l.Pos[0], l.Pos[1], l.Pos[2])
}

func flagLocations(snap snapshot.RegionV1, attr string) []flagLocation {
	var out []flagLocation
	for _, e := range snap.Entities {
		if e.Attributes[attr] {
			out = append(out, flagLocation{Where: "ENTITY", Entity: e.ID, Type: e.Type, Pos: e.Pos})
		}
		if e.Stack != nil && e.Stack.Attributes[attr] {
			out = append(out, flagLocation{Where: "ITEM", Entity: e.ID, Type: e.Stack.Type, Pos: e.Pos})
		}
		slots := make([]string, 0, len(e.Equipment))
		for name := range e.Equipment {
			slots = append(slots, name)
		}
		sort.Strings(slots)
		for _, name := range slots {
			if st := e.Equipment[name].Stack; st.Attributes[attr] {
				out = append(out, flagLocation{Where: "SLOT:" + name, Entity: e.ID, Type: st.Type, Pos: e.Pos})
			}
		}
		for _, st := range e.Inventory {
			if st.Attributes[attr] {
				out = append(out, flagLocation{Where: "INVENTORY", Entity: e.ID, Type: st.Type, Pos: e.Pos})
			}
		}
	}
	for _, in := range snap.Intake {
		for _, st := range in.Items {
			if st.Attributes[attr] {
				out = append(out, flagLocation{Where: "INTAKE", Type: st.Type, Pos: in.Pos})
			}
		}
	}
	return out
}

func snapshotCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("path", "", "region snapshot path")
	dataDir := fs.String("data", "./data", "runtime data directory (with -realm)")
	realm := fs.String("realm", "", "realm id; reads <data>/regions/<realm>.snap.zst")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*realm) == "" {
			return fmt.Errorf("missing -path or -realm")
		}
		p = snapshot.RegionPath(*dataDir, strings.ToUpper(*realm))
	}
	snap, err := snapshot.ReadRegion(p)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	attr := marker.Key.String()
	fmt.Fprintf(out, "realm=%s tick=%d entities=%d flags=%d\n",
		snap.Header.Realm, snap.Header.Tick, len(snap.Entities), snap.FlagCount(attr))
	for _, l := range flagLocations(snap, attr) {
		fmt.Fprintln(out, l.String())
	}
	return nil
}

func auditCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	action := fs.String("action", "", "action filter (e.g. FLAG_PICKUP)")
	actor := fs.String("actor", "", "actor uuid filter")
	_ = fs.Parse(args)

	files, err := persistlog.AuditFiles(*dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audit files under %s", filepath.Join(*dataDir, "audit"))
	}
	want := strings.ToUpper(strings.TrimSpace(*action))
	for _, f := range files {
		err := persistlog.ReadAudit(f, func(e world.AuditEntry) error {
			if want != "" && e.Action != want {
				return nil
			}
			if *actor != "" && e.Actor != *actor {
				return nil
			}
			fmt.Fprintln(out, formatEvent(e.Tick, e.Action, e.Actor, e.Realm, e.Pos, e.Reason))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func formatEvent(tick uint64, action, actor, realm string, pos [3]int, reason string) string {
	s := fmt.Sprintf("%8d %-20s %-36s %-10s %d,%d,%d", tick, action, actor, realm, pos[0], pos[1], pos[2])
	if reason != "" {
		s += " " + reason
	}
	return s
}
