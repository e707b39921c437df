package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ctfbuddy.ai/internal/ctf/beacon"
	"ctfbuddy.ai/internal/ctf/command"
	"ctfbuddy.ai/internal/ctf/marker"
	"ctfbuddy.ai/internal/ctf/tracker"
	"ctfbuddy.ai/internal/persistence/archive"
	persistlog "ctfbuddy.ai/internal/persistence/log"
	"ctfbuddy.ai/internal/persistence/snapshot"
	"ctfbuddy.ai/internal/sim/tuning"
	"ctfbuddy.ai/internal/sim/world"
	"ctfbuddy.ai/internal/transport/ws"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite flag-event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	if _, err := os.Stat(tp); errors.Is(err, os.ErrNotExist) {
		logger.Printf("tuning not found (%s); using defaults", tp)
		tp = ""
	}
	tune, err := tuning.LoadWithEnv(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	trackerCfg, err := tune.TrackerConfig()
	if err != nil {
		logger.Fatalf("tracker config: %v", err)
	}
	beaconCfg, err := tune.BeaconConfig()
	if err != nil {
		logger.Fatalf("beacon config: %v", err)
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: flag-event index (read model only).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	audit := world.MultiAudit{auditLog}
	if idx != nil {
		audit = append(audit, idx)
	}

	w, err := world.New(tune.WorldConfig(*dataDir), log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetAuditLogger(audit)

	ctfLogger := log.New(os.Stdout, "[ctf] ", log.LstdFlags|log.Lmicroseconds)
	beacons := beacon.New(beaconCfg, beacon.Broadcast{Presenter: w, World: w}, log.New(os.Stdout, "[beacon] ", log.LstdFlags|log.Lmicroseconds))
	tr := tracker.New(trackerCfg, w, beacons, audit, ctfLogger)
	w.AddListener(tr)
	cmds := command.NewDispatcher(w, tr, tune.TrackingRanges(), version, ctfLogger)
	logger.Printf("%s", cmds.Info())

	ctx, cancel := signalContext()
	defer cancel()

	// Restore realms before ticking; RegionLoad re-arms beacons for flags found on disk.
	if err := w.LoadAll(ctx); err != nil {
		logger.Fatalf("load realms: %v", err)
	}
	logger.Printf("loaded realms census=%v", w.Census())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, beacons, idx)
	})

	enableAdminHTTP := envBool("CTF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("CTF_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Version string         `json:"version"`
				Tick    uint64         `json:"tick"`
				Census  map[string]int `json:"census"`
				Beacons int            `json:"beacons"`
			}{
				Version: version,
				Tick:    w.CurrentTick(),
				Census:  w.Census(),
				Beacons: beacons.Len(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			n, err := saveAll(ctx2, w, idx, *dataDir, tune.ArchiveKeep)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "realms": n, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "realms": n})
		})
	} else {
		logger.Printf("admin endpoints disabled (CTF_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, cmds, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if tune.SaveEvery > 0 {
		g.Go(func() error {
			runSaver(gctx, w, idx, *dataDir, tune.SaveEvery, tune.ArchiveKeep, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}

	// Final save after the regions stopped; Do runs inline now.
	if n, err := saveAll(context.Background(), w, idx, *dataDir, tune.ArchiveKeep); err != nil {
		logger.Printf("final save: %v", err)
	} else {
		logger.Printf("saved %d realms", n)
	}
}

// runSaver snapshots every loaded realm each interval until ctx is done.
func runSaver(ctx context.Context, w *world.World, idx runtimeIndex, dataDir string, every time.Duration, keep int, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := saveAll(ctx, w, idx, dataDir, keep); err != nil && ctx.Err() == nil {
				logger.Printf("snapshot save: %v", err)
			}
		}
	}
}

// saveAll writes every loaded realm, then indexes and archives the snapshots.
func saveAll(ctx context.Context, w *world.World, idx runtimeIndex, dataDir string, keep int) (int, error) {
	snaps, err := w.SaveAll(ctx)
	attr := marker.Key.String()
	for _, snap := range snaps {
		path := snapshot.RegionPath(dataDir, snap.Header.Realm)
		if idx != nil {
			idx.RecordSnapshot(path, snap, attr)
		}
		if _, aerr := archive.ArchiveRegionSnapshot(dataDir, path, snap, attr, keep); aerr != nil && err == nil {
			err = fmt.Errorf("archive %s: %w", snap.Header.Realm, aerr)
		}
	}
	return len(snaps), err
}

func writeMetrics(rw http.ResponseWriter, w *world.World, beacons *beacon.Scheduler, idx runtimeIndex) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP ctfbuddy_world_tick Current tick of the default realm.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_world_tick gauge\n")
	fmt.Fprintf(rw, "ctfbuddy_world_tick %d\n", w.CurrentTick())

	fmt.Fprintf(rw, "# HELP ctfbuddy_realm_entities Entities per realm.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_realm_entities gauge\n")
	census := w.Census()
	for _, id := range w.RealmIDs() {
		fmt.Fprintf(rw, "ctfbuddy_realm_entities{realm=%q} %d\n", id, census[id])
	}

	fmt.Fprintf(rw, "# HELP ctfbuddy_realm_players Players per realm.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_realm_players gauge\n")
	for _, id := range w.RealmIDs() {
		fmt.Fprintf(rw, "ctfbuddy_realm_players{realm=%q} %d\n", id, len(w.PlayersIn(id)))
	}

	fmt.Fprintf(rw, "# HELP ctfbuddy_beacons Flags with a scheduled beacon.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_beacons gauge\n")
	fmt.Fprintf(rw, "ctfbuddy_beacons %d\n", beacons.Len())

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP ctfbuddy_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "ctfbuddy_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP ctfbuddy_index_dropped_total Index writes dropped under backpressure.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_index_dropped_total counter\n")
	fmt.Fprintf(rw, "ctfbuddy_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "ctfbuddy_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)

	fmt.Fprintf(rw, "# HELP ctfbuddy_index_written_total Index rows written.\n")
	fmt.Fprintf(rw, "# TYPE ctfbuddy_index_written_total counter\n")
	fmt.Fprintf(rw, "ctfbuddy_index_written_total %d\n", s.WrittenTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
