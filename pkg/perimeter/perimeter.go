package perimeter

// Bands holds the zone boundaries as fractions of frame height, measured from
// the top of the frame. The protected boundary is at the bottom edge.
type Bands struct {
	SafeLine    float64 `koanf:"safe_line" validate:"gt=0,lt=1"`
	WarningLine float64 `koanf:"warning_line" validate:"gt=0,lt=1"`
	DangerLine  float64 `koanf:"danger_line" validate:"gt=0,lt=1"`
}

// DefaultBands returns the 40% / 70% / 90% layout.
func DefaultBands() Bands {
	return Bands{
		SafeLine:    0.4,
		WarningLine: 0.7,
		DangerLine:  0.9,
	}
}

// Perimeter classifies positions in a frame of fixed size into zones.
type Perimeter struct {
	width, height int

	safeLine    int
	warningLine int
	dangerLine  int
}

// New builds a perimeter for a width x height frame.
func New(width, height int, bands Bands) *Perimeter {
	return &Perimeter{
		width:       width,
		height:      height,
		safeLine:    int(float64(height) * bands.SafeLine),
		warningLine: int(float64(height) * bands.WarningLine),
		dangerLine:  int(float64(height) * bands.DangerLine),
	}
}

// Lines returns the pixel rows of the safe, warning and danger boundaries.
func (p *Perimeter) Lines() (safe, warning, danger int) {
	return p.safeLine, p.warningLine, p.dangerLine
}

// Size returns the frame dimensions the perimeter was built for.
func (p *Perimeter) Size() (width, height int) {
	return p.width, p.height
}

// Classify returns the zone containing pos. Absent positions are Unknown.
func (p *Perimeter) Classify(pos Position) Zone {
	if !pos.Present() {
		return Unknown
	}

	y := pos.Y
	switch {
	case y < float64(p.safeLine):
		return Safe
	case y < float64(p.warningLine):
		return Warning
	case y < float64(p.dangerLine):
		return Danger
	default:
		return Intrusion
	}
}

// DistanceToPerimeter returns 0..100 where 100 is far from the boundary and 0
// is at it. Absent positions are treated as far away.
func (p *Perimeter) DistanceToPerimeter(pos Position) int {
	if !pos.Present() || p.height <= 0 {
		return 100
	}
	d := int((1 - pos.Y/float64(p.height)) * 100)
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return d
}
