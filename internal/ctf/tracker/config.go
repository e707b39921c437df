package tracker

import (
	"fmt"
	"strings"

	"ctfbuddy.ai/internal/sim/world"
)

// QuitPolicy decides what happens to a flag whose carrier disconnects.
type QuitPolicy int

const (
	// QuitDropFlag drops the flag where the carrier stood.
	QuitDropFlag QuitPolicy = iota
	// QuitDestroyCarrier kills the carrier; death handling drops the flag.
	QuitDestroyCarrier
)

func (p QuitPolicy) String() string {
	if p == QuitDestroyCarrier {
		return "DESTROY_CARRIER"
	}
	return "DROP_FLAG"
}

// ParseQuitPolicy accepts DROP/KILL as well as the long names.
func ParseQuitPolicy(s string) (QuitPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DROP", "DROP_FLAG":
		return QuitDropFlag, nil
	case "KILL", "DESTROY_CARRIER":
		return QuitDestroyCarrier, nil
	default:
		return QuitDropFlag, fmt.Errorf("unknown quit mode %q", s)
	}
}

type Config struct {
	// AllowRestrictedRealm lets flags enter and leave RestrictedRealm.
	AllowRestrictedRealm bool
	RestrictedRealm      string
	BeaconEnabled        bool
	QuitPolicy           QuitPolicy
}

func DefaultConfig() Config {
	return Config{
		RestrictedRealm: world.RealmEnd,
		BeaconEnabled:   true,
		QuitPolicy:      QuitDropFlag,
	}
}
