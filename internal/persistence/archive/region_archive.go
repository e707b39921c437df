package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctfbuddy.ai/internal/persistence/snapshot"
)

type RegionArchiveMeta struct {
	Realm     string `json:"realm"`
	Tick      uint64 `json:"tick"`
	Entities  int    `json:"entities"`
	Flags     int    `json:"flags"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveRegionSnapshot copies a saved realm snapshot into
// `dataDir/archives/<realm>/<tick>.snap.zst`, writes meta.json next to it
// and keeps only the newest keep copies. keep <= 0 disables archiving.
func ArchiveRegionSnapshot(dataDir, snapshotPath string, snap snapshot.RegionV1, flagAttr string, keep int) (archivedPath string, err error) {
	if keep <= 0 {
		return "", nil
	}
	realm := snap.Header.Realm
	if realm == "" {
		return "", fmt.Errorf("archive: snapshot has no realm")
	}
	archiveDir := filepath.Join(dataDir, "archives", realm)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := RegionArchiveMeta{
		Realm:     realm,
		Tick:      snap.Header.Tick,
		Entities:  len(snap.Entities),
		Flags:     snap.FlagCount(flagAttr),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, prune(archiveDir, keep)
}

// List returns the archived snapshot paths of realm, oldest first.
func List(dataDir, realm string) ([]string, error) {
	dir := filepath.Join(dataDir, "archives", realm)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type entry struct {
		tick uint64
		path string
	}
	var out []entry
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, entry{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	paths := make([]string, 0, len(out))
	for _, e := range out {
		paths = append(paths, e.path)
	}
	return paths, nil
}

func prune(dir string, keep int) error {
	paths, err := List(filepath.Dir(filepath.Dir(dir)), filepath.Base(dir))
	if err != nil {
		return err
	}
	for len(paths) > keep {
		if err := os.Remove(paths[0]); err != nil {
			return err
		}
		paths = paths[1:]
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
