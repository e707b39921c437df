package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/persistence/indexdb"
	persistlog "ctfbuddy.ai/internal/persistence/log"
	"ctfbuddy.ai/internal/persistence/snapshot"
	"ctfbuddy.ai/internal/sim/world"
)

func flagged() map[string]bool { return map[string]bool{marker.Key.String(): true} }

func TestFlagLocations(t *testing.T) {
	snap := snapshot.RegionV1{
		Header: snapshot.Header{Version: snapshot.Version, Realm: "NETHER", Tick: 7},
		Entities: []snapshot.EntityV1{
			{ID: "pig", Type: "PIG", Pos: [3]int{1, 2, 3}, Attributes: flagged()},
			{ID: "loose", Type: "ITEM", Pos: [3]int{4, 5, 6}, Stack: &snapshot.StackV1{Type: "RED_BANNER", Count: 1, Attributes: flagged()}},
			{ID: "zombie", Type: "ZOMBIE", Equipment: map[string]snapshot.SlotV1{
				"HEAD":      {Stack: snapshot.StackV1{Type: "RED_BANNER", Count: 1, Attributes: flagged()}, DropChance: 2},
				"MAIN_HAND": {Stack: snapshot.StackV1{Type: "STICK", Count: 1}},
			}},
			{ID: "sheep", Type: "SHEEP"},
		},
		Intake: []snapshot.IntakeV1{{Pos: [3]int{9, 9, 9}, Items: []snapshot.StackV1{{Type: "BLUE_BANNER", Count: 1, Attributes: flagged()}}}},
	}
	got := flagLocations(snap, marker.Key.String())
	want := []string{"ENTITY", "ITEM", "SLOT:HEAD", "INTAKE"}
	if len(got) != len(want) {
		t.Fatalf("got %d locations: %+v", len(got), got)
	}
	for i, w := range want {
		if got[i].Where != w {
			t.Fatalf("location %d = %s, want %s", i, got[i].Where, w)
		}
	}
	if got[2].Entity != "zombie" || got[3].Pos != [3]int{9, 9, 9} {
		t.Fatalf("unexpected locations %+v", got)
	}
}

func TestSnapshotCmd(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot.RegionV1{
		Header:   snapshot.Header{Version: snapshot.Version, Realm: "END", Tick: 99},
		Entities: []snapshot.EntityV1{{ID: "pig", Type: "PIG", Attributes: flagged()}},
	}
	if err := snapshot.WriteRegion(snapshot.RegionPath(dir, "END"), snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := snapshotCmd(&out, []string{"-data", dir, "-realm", "end"}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.Contains(out.String(), "realm=END tick=99 entities=1 flags=1") || !strings.Contains(out.String(), "ENTITY") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if err := snapshotCmd(&out, nil); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "flags.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.WriteAudit(world.AuditEntry{Tick: 1, Actor: "a", Action: "FLAG_GROUNDED", Realm: "OVERWORLD"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 2, Actor: "b", Action: "FLAG_PICKUP", Realm: "OVERWORLD"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "b", Action: "FLAG_CARRIER_QUIT", Realm: "OVERWORLD", Reason: "DROP_FLAG"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	if err := historyCmd(&out, []string{"-data", dir, "-action", "flag_pickup"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "FLAG_PICKUP") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := historyCmd(&out, []string{"-data", dir, "-limit", "2"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "DROP_FLAG") {
		t.Fatalf("expected newest first, got %q", out.String())
	}

	if err := historyCmd(&out, []string{"-data", t.TempDir()}); err == nil {
		t.Fatalf("expected error for a missing index")
	}
}

func TestAuditCmd(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLogger(dir)
	_ = l.WriteAudit(world.AuditEntry{Tick: 5, Actor: "p1", Action: "FLAG_PICKUP", Realm: "NETHER", Pos: [3]int{1, 2, 3}})
	_ = l.WriteAudit(world.AuditEntry{Tick: 6, Actor: "p1", Action: "FLAG_CARRIER_DIED", Realm: "NETHER"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var out bytes.Buffer
	if err := auditCmd(&out, []string{"-data", dir, "-action", "FLAG_PICKUP"}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if got := strings.TrimSpace(out.String()); !strings.Contains(got, "FLAG_PICKUP") || strings.Contains(got, "DIED") || !strings.Contains(got, "1,2,3") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestStateAndSaveCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/admin/v1/state" && r.Method == http.MethodGet:
			_, _ = rw.Write([]byte(`{"tick":3}`))
		case r.URL.Path == "/admin/v1/snapshot" && r.Method == http.MethodPost:
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(`{"ok":false}`))
		default:
			http.NotFound(rw, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := stateCmd(&out, []string{"-url", srv.URL}); err != nil {
		t.Fatalf("state: %v", err)
	}
	if strings.TrimSpace(out.String()) != `{"tick":3}` {
		t.Fatalf("unexpected state %q", out.String())
	}
	if err := saveCmd(&out, []string{"-url", srv.URL + "/"}); err == nil {
		t.Fatalf("expected error on 503")
	}
}
