// Package risk fuses behaviour suspicion, zone and feed trust into a single
// risk score and buckets it into levels.
package risk

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-intent/pkg/perimeter"
)

// TrustFloorThreshold is the normalised trust below which risk is raised to
// at least TrustFloor.
const (
	TrustFloorThreshold = 0.7
	TrustFloor          = 50.0
)

// Level buckets a risk score.
type Level int

const (
	Low Level = iota
	Medium
	High
	Critical
)

var levelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l Level) String() string {
	if l < Low || l > Critical {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	for i, name := range levelNames {
		if name == string(text) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("risk: unknown level %q", text)
}

// Classify maps a risk score to its level.
func Classify(score int) Level {
	switch {
	case score < 30:
		return Low
	case score < 60:
		return Medium
	case score < 80:
		return High
	default:
		return Critical
	}
}

// Fuse combines the behaviour composite, the zone and the trust composite.
// A distrusted feed keeps risk at or above TrustFloor regardless of behaviour.
func Fuse(behavior int, zone perimeter.Zone, trust int) int {
	r := float64(behavior) * zone.Multiplier()
	if float64(trust)/100 < TrustFloorThreshold {
		r = math.Max(r, TrustFloor)
	}
	r = math.Min(math.Max(r, 0), 100)
	return int(r)
}

// Assessment is one fused reading.
type Assessment struct {
	Score int            `json:"score"`
	Level Level          `json:"level"`
	Zone  perimeter.Zone `json:"zone"`
}

// Assess fuses the inputs and classifies the result.
func Assess(behavior int, zone perimeter.Zone, trust int) Assessment {
	score := Fuse(behavior, zone, trust)
	return Assessment{Score: score, Level: Classify(score), Zone: zone}
}
