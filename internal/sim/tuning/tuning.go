package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"ctfbuddy.ai/internal/ctf/beacon"
	"ctfbuddy.ai/internal/ctf/command"
	"ctfbuddy.ai/internal/ctf/tracker"
	"ctfbuddy.ai/internal/sim/world"
)

// Tuning is the server configuration: configs/tuning.yaml, then CTF_* environment overrides.
type Tuning struct {
	TickRateHz       int     `yaml:"tick_rate_hz" json:"tick_rate_hz" env:"CTF_TICK_RATE_HZ"`
	ItemTTLTicks     int     `yaml:"item_ttl_ticks" json:"item_ttl_ticks" env:"CTF_ITEM_TTL_TICKS"`
	PickupDelayTicks int     `yaml:"pickup_delay_ticks" json:"pickup_delay_ticks" env:"CTF_PICKUP_DELAY_TICKS"`
	KeepInventory    bool    `yaml:"keep_inventory" json:"keep_inventory" env:"CTF_KEEP_INVENTORY"`
	DefaultRealm     string  `yaml:"default_realm" json:"default_realm" env:"CTF_DEFAULT_REALM"`
	Realms           []Realm `yaml:"realms" json:"realms"`

	RestrictedRealm string `yaml:"restricted_realm" json:"restricted_realm" env:"CTF_RESTRICTED_REALM"`
	AllowEnd        bool   `yaml:"allow_end" json:"allow_end" env:"CTF_ALLOW_END"`
	UseBeacons      bool   `yaml:"use_beacons" json:"use_beacons" env:"CTF_USE_BEACONS"`
	QuitMode        string `yaml:"quit_mode" json:"quit_mode" env:"CTF_QUIT_MODE"`

	// UseFireworks is the legacy name of UseBeacons.
	UseFireworks *bool `yaml:"use_fireworks,omitempty" json:"-"`

	Beacon        Beacon        `yaml:"beacon" json:"beacon" envPrefix:"CTF_BEACON_"`
	TrackingRange TrackingRange `yaml:"tracking_range" json:"tracking_range" envPrefix:"CTF_TRACKING_RANGE_"`

	SaveEvery   time.Duration `yaml:"save_every" json:"save_every" env:"CTF_SAVE_EVERY"`
	ArchiveKeep int           `yaml:"archive_keep" json:"archive_keep" env:"CTF_ARCHIVE_KEEP"`
}

type Realm struct {
	ID          string   `yaml:"id" json:"id"`
	Spawn       [3]int   `yaml:"spawn" json:"spawn"`
	BuildHeight int      `yaml:"build_height" json:"build_height"`
	Intakes     [][3]int `yaml:"intakes,omitempty" json:"intakes,omitempty"`
}

type Beacon struct {
	Mode         string        `yaml:"mode" json:"mode" env:"MODE"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" env:"INITIAL_DELAY"`
	Jitter       time.Duration `yaml:"jitter" json:"jitter" env:"JITTER"`
	Period       time.Duration `yaml:"period" json:"period" env:"PERIOD"`
}

type TrackingRange struct {
	Players  int `yaml:"players" json:"players" env:"PLAYERS"`
	Animals  int `yaml:"animals" json:"animals" env:"ANIMALS"`
	Monsters int `yaml:"monsters" json:"monsters" env:"MONSTERS"`
	Misc     int `yaml:"misc" json:"misc" env:"MISC"`
}

func Default() Tuning {
	wc := world.DefaultConfig()
	bc := beacon.DefaultConfig()
	tr := command.DefaultTrackingRanges()
	t := Tuning{
		TickRateHz:       wc.TickRateHz,
		ItemTTLTicks:     wc.ItemTTLTicks,
		PickupDelayTicks: wc.PickupDelayTicks,
		DefaultRealm:     wc.DefaultRealm,
		RestrictedRealm:  world.RealmEnd,
		UseBeacons:       true,
		QuitMode:         "DROP",
		Beacon: Beacon{
			Mode:         bc.Mode.String(),
			InitialDelay: bc.InitialDelay,
			Jitter:       bc.Jitter,
			Period:       bc.Period,
		},
		TrackingRange: TrackingRange{Players: tr.Players, Animals: tr.Animals, Monsters: tr.Monsters, Misc: tr.Misc},
		SaveEvery:     5 * time.Minute,
		ArchiveKeep:   12,
	}
	for _, rc := range wc.Realms {
		t.Realms = append(t.Realms, Realm{ID: rc.ID, Spawn: rc.Spawn.ToArray(), BuildHeight: rc.BuildHeight})
	}
	return t
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.UseFireworks != nil {
		t.UseBeacons = *t.UseFireworks
		t.UseFireworks = nil
	}
	return t, nil
}

// ApplyEnv overrides fields from CTF_* variables that are set.
func (t *Tuning) ApplyEnv() error {
	if err := env.Parse(t); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadWithEnv loads path, applies the environment and validates the result.
func LoadWithEnv(path string) (Tuning, error) {
	t, err := Load(path)
	if err != nil {
		return t, err
	}
	if err := t.ApplyEnv(); err != nil {
		return t, err
	}
	return t, t.Validate()
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if t.ItemTTLTicks <= 0 {
		errs = append(errs, fmt.Errorf("item_ttl_ticks must be > 0"))
	}
	if t.PickupDelayTicks < 0 {
		errs = append(errs, fmt.Errorf("pickup_delay_ticks must be >= 0"))
	}
	if len(t.Realms) == 0 {
		errs = append(errs, fmt.Errorf("realms must not be empty"))
	}
	ids := map[string]bool{}
	for _, r := range t.Realms {
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, fmt.Errorf("realm id must not be empty"))
			continue
		}
		if ids[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate realm %s", r.ID))
		}
		ids[r.ID] = true
		if r.BuildHeight <= r.Spawn[1] {
			errs = append(errs, fmt.Errorf("realm %s: build_height must be above spawn", r.ID))
		}
	}
	if t.DefaultRealm != "" && !ids[t.DefaultRealm] {
		errs = append(errs, fmt.Errorf("default_realm %s is not a configured realm", t.DefaultRealm))
	}
	if t.RestrictedRealm != "" && !ids[t.RestrictedRealm] {
		errs = append(errs, fmt.Errorf("restricted_realm %s is not a configured realm", t.RestrictedRealm))
	}
	if _, err := tracker.ParseQuitPolicy(t.QuitMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := beacon.ParseMode(t.Beacon.Mode); err != nil {
		errs = append(errs, err)
	}
	if t.Beacon.Period <= 0 {
		errs = append(errs, fmt.Errorf("beacon.period must be > 0"))
	}
	if t.Beacon.InitialDelay < 0 || t.Beacon.Jitter < 0 {
		errs = append(errs, fmt.Errorf("beacon delays must be >= 0"))
	}
	if t.SaveEvery < 0 {
		errs = append(errs, fmt.Errorf("save_every must be >= 0"))
	}
	if t.ArchiveKeep < 0 {
		errs = append(errs, fmt.Errorf("archive_keep must be >= 0"))
	}
	return errors.Join(errs...)
}

// WorldConfig builds the world configuration; dataDir holds region snapshots.
func (t Tuning) WorldConfig(dataDir string) world.Config {
	cfg := world.Config{
		DefaultRealm:     t.DefaultRealm,
		TickRateHz:       t.TickRateHz,
		ItemTTLTicks:     t.ItemTTLTicks,
		PickupDelayTicks: t.PickupDelayTicks,
		KeepInventory:    t.KeepInventory,
		DataDir:          dataDir,
	}
	for _, r := range t.Realms {
		rc := world.RealmConfig{ID: r.ID, Spawn: world.Vec3iFromArray(r.Spawn), BuildHeight: r.BuildHeight}
		for _, in := range r.Intakes {
			rc.Intakes = append(rc.Intakes, world.Vec3iFromArray(in))
		}
		cfg.Realms = append(cfg.Realms, rc)
	}
	return cfg
}

func (t Tuning) TrackerConfig() (tracker.Config, error) {
	qp, err := tracker.ParseQuitPolicy(t.QuitMode)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{
		AllowRestrictedRealm: t.AllowEnd,
		RestrictedRealm:      t.RestrictedRealm,
		BeaconEnabled:        t.UseBeacons,
		QuitPolicy:           qp,
	}, nil
}

func (t Tuning) BeaconConfig() (beacon.Config, error) {
	mode, err := beacon.ParseMode(t.Beacon.Mode)
	if err != nil {
		return beacon.Config{}, err
	}
	return beacon.Config{
		Mode:         mode,
		InitialDelay: t.Beacon.InitialDelay,
		Jitter:       t.Beacon.Jitter,
		Period:       t.Beacon.Period,
	}, nil
}

func (t Tuning) TrackingRanges() command.TrackingRanges {
	return command.TrackingRanges{
		Players:  t.TrackingRange.Players,
		Animals:  t.TrackingRange.Animals,
		Monsters: t.TrackingRange.Monsters,
		Misc:     t.TrackingRange.Misc,
	}
}
