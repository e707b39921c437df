package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Realm   string `json:"realm"`
	Tick    uint64 `json:"tick"`
}

// RegionV1 is the persisted state of one realm.
type RegionV1 struct {
	Header Header `json:"header"`

	BuildHeight int        `json:"build_height"`
	Spawn       [3]int     `json:"spawn"`
	Entities    []EntityV1 `json:"entities"`
	Intake      []IntakeV1 `json:"intake,omitempty"`
}

type EntityV1 struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Pos  [3]int `json:"pos"`
	HP   int    `json:"hp"`

	Attributes map[string]bool `json:"attributes,omitempty"`

	Glowing           bool   `json:"glowing,omitempty"`
	Invulnerable      bool   `json:"invulnerable,omitempty"`
	Persistent        bool   `json:"persistent,omitempty"`
	CustomName        string `json:"custom_name,omitempty"`
	CustomNameVisible bool   `json:"custom_name_visible,omitempty"`
	RemoveWhenFarAway bool   `json:"remove_when_far_away,omitempty"`
	UnlimitedLifetime bool   `json:"unlimited_lifetime,omitempty"`
	WillAge           bool   `json:"will_age,omitempty"`
	ExpiresIn         uint64 `json:"expires_in,omitempty"`

	Stack     *StackV1          `json:"stack,omitempty"`
	Equipment map[string]SlotV1 `json:"equipment,omitempty"`
	Inventory []StackV1         `json:"inventory,omitempty"`
	Vehicle   string            `json:"vehicle,omitempty"`
}

type SlotV1 struct {
	Stack      StackV1 `json:"stack"`
	DropChance float64 `json:"drop_chance"`
}

type StackV1 struct {
	Type  string `json:"type"`
	Count int    `json:"count"`

	DisplayName   string          `json:"display_name,omitempty"`
	Unbreakable   bool            `json:"unbreakable,omitempty"`
	FireResistant bool            `json:"fire_resistant,omitempty"`
	GlintOverride bool            `json:"glint_override,omitempty"`
	MaxStackSize  int             `json:"max_stack_size,omitempty"`
	Rarity        string          `json:"rarity,omitempty"`
	Enchantments  map[string]int  `json:"enchantments,omitempty"`
	Attributes    map[string]bool `json:"attributes,omitempty"`
}

type IntakeV1 struct {
	Pos   [3]int    `json:"pos"`
	Items []StackV1 `json:"items"`
}

func WriteRegion(path string, snap RegionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap RegionV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadRegion(path string) (RegionV1, error) {
	var snap RegionV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// RegionPath is where a realm snapshot lives under dataDir.
func RegionPath(dataDir, realm string) string {
	return filepath.Join(dataDir, "regions", realm+".snap.zst")
}

// FlagCount counts entities and stacks carrying attr=true.
func (s RegionV1) FlagCount(attr string) int {
	n := 0
	for _, e := range s.Entities {
		if e.Attributes[attr] {
			n++
		}
		if e.Stack != nil && e.Stack.Attributes[attr] {
			n++
		}
		for _, sl := range e.Equipment {
			if sl.Stack.Attributes[attr] {
				n++
			}
		}
		for _, st := range e.Inventory {
			if st.Attributes[attr] {
				n++
			}
		}
	}
	for _, in := range s.Intake {
		for _, st := range in.Items {
			if st.Attributes[attr] {
				n++
			}
		}
	}
	return n
}
