package beacon

import (
	"fmt"
	"strings"
	"time"
)

type Mode int

const (
	// ModeEntity runs one task per flag on the flag's own scheduler.
	ModeEntity Mode = iota
	// ModeRegion runs one polling sweep per region over the flags it hosts.
	ModeRegion
)

func (m Mode) String() string {
	if m == ModeRegion {
		return "region"
	}
	return "entity"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "entity":
		return ModeEntity, nil
	case "region":
		return ModeRegion, nil
	default:
		return ModeEntity, fmt.Errorf("unknown beacon mode %q", s)
	}
}

type Config struct {
	Mode Mode
	// The first tick fires after InitialDelay plus a random share of Jitter.
	InitialDelay time.Duration
	Jitter       time.Duration
	Period       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModeEntity,
		InitialDelay: time.Minute,
		Jitter:       20 * time.Second,
		Period:       time.Minute,
	}
}
