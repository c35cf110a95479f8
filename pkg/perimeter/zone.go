// Package perimeter maps subject positions to proximity bands around a
// protected boundary.
package perimeter

import (
	"fmt"
	"strings"
)

// Zone is a proximity band to the monitored perimeter.
// Known zones are ordered by severity: Safe < Warning < Danger < Intrusion.
// Unknown is a sentinel and is excluded from comparisons.
type Zone int

const (
	Unknown Zone = iota
	Safe
	Warning
	Danger
	Intrusion
)

var zoneNames = map[Zone]string{
	Unknown:   "UNKNOWN",
	Safe:      "SAFE",
	Warning:   "WARNING",
	Danger:    "DANGER",
	Intrusion: "INTRUSION",
}

// String returns the upper-case zone label.
func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText encodes the zone as its label.
func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// UnmarshalText decodes a zone label.
func (z *Zone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}

// ParseZone parses a zone label, case-insensitively.
func ParseZone(s string) (Zone, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for z, name := range zoneNames {
		if name == want {
			return z, nil
		}
	}
	return Unknown, fmt.Errorf("perimeter: unknown zone %q", s)
}

// Known reports whether z is one of the ordered zones.
func (z Zone) Known() bool {
	return z >= Safe && z <= Intrusion
}

// Severity returns 0..3 for Safe..Intrusion and -1 for Unknown.
func (z Zone) Severity() int {
	if !z.Known() {
		return -1
	}
	return int(z - Safe)
}

// Multiplier is the risk weight applied to behavior scores observed in this zone.
func (z Zone) Multiplier() float64 {
	switch z {
	case Safe:
		return 0.5
	case Warning:
		return 1.0
	case Danger:
		return 1.5
	case Intrusion:
		return 2.0
	default:
		return 0.0
	}
}
