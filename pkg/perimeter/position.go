package perimeter

import (
	"encoding/json"
	"fmt"
	"math"
)

// Position is a subject's body center in frame pixels, or absent when no
// subject was found this cycle.
type Position struct {
	X, Y    float64
	present bool
}

// At returns a present position.
func At(x, y float64) Position {
	return Position{X: x, Y: y, present: true}
}

// Absent is the position reported when no subject is detected.
var Absent = Position{}

// Present reports whether the position carries coordinates.
func (p Position) Present() bool {
	return p.present
}

// Finite reports whether both coordinates are finite numbers.
func (p Position) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between two present positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func (p Position) String() string {
	if !p.present {
		return "absent"
	}
	return fmt.Sprintf("(%.0f, %.0f)", p.X, p.Y)
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MarshalJSON encodes an absent position as null.
func (p Position) MarshalJSON() ([]byte, error) {
	if !p.present {
		return []byte("null"), nil
	}
	return json.Marshal(positionJSON{X: p.X, Y: p.Y})
}

// UnmarshalJSON decodes null as Absent.
func (p *Position) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Absent
		return nil
	}
	var v positionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = At(v.X, v.Y)
	return nil
}
