// Package overlay draws the perimeter bands and the live risk readout onto
// camera frames for the dashboard stream and recorded clips.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/risk"
)

var (
	white  = color.RGBA{255, 255, 255, 255}
	grey   = color.RGBA{200, 200, 200, 255}
	black  = color.RGBA{0, 0, 0, 255}
	green  = color.RGBA{0, 255, 0, 255}
	yellow = color.RGBA{255, 255, 0, 255}
	orange = color.RGBA{255, 165, 0, 255}
	red    = color.RGBA{255, 0, 0, 255}
	purple = color.RGBA{255, 0, 255, 255}
)

// SuspectTrust is the trust composite below which the banner warns about
// the feed itself.
const SuspectTrust = 60

// LevelColor returns the display color of a risk level.
func LevelColor(l risk.Level) color.RGBA {
	switch l {
	case risk.Low:
		return green
	case risk.Medium:
		return yellow
	case risk.High:
		return orange
	default:
		return red
	}
}

// ZoneColor returns the display color of a zone band.
func ZoneColor(z perimeter.Zone) color.RGBA {
	switch z {
	case perimeter.Safe:
		return green
	case perimeter.Warning:
		return yellow
	case perimeter.Danger:
		return orange
	case perimeter.Intrusion:
		return red
	default:
		return grey
	}
}

// scoreColor grades a behaviour sub-score.
func scoreColor(v int) color.RGBA {
	switch {
	case v < 40:
		return green
	case v < 70:
		return yellow
	default:
		return red
	}
}

// Banner returns the alert text to flash for r, or "" when calm.
func Banner(r pipeline.Result, enter int) string {
	switch {
	case r.Trust.OverallTrust < SuspectTrust:
		return "!!! ALERT: CAMERA FEED SUSPICIOUS !!!"
	case r.Risk >= enter:
		return "!!! ALERT: HIGH THREAT DETECTED !!!"
	default:
		return ""
	}
}

// Painter draws onto frames of a fixed perimeter.
type Painter struct {
	perimeter *perimeter.Perimeter
	enter     int
}

// New creates a painter. enter is the alert-enter threshold used for the banner.
func New(p *perimeter.Perimeter, enter int) *Painter {
	return &Painter{perimeter: p, enter: enter}
}

// Draw paints the zones, subject and readout for r onto img in place.
func (p *Painter) Draw(img *gocv.Mat, r pipeline.Result, now time.Time) {
	if img.Empty() {
		return
	}
	w := img.Cols()
	h := img.Rows()

	p.drawZones(img, w)

	if r.Position.Present() {
		c := image.Pt(int(r.Position.X), int(r.Position.Y))
		gocv.Circle(img, c, 12, purple, -1)
		gocv.Circle(img, c, 15, white, 2)
	}

	gocv.Rectangle(img, image.Rect(0, 0, w, 60), black, -1)
	gocv.PutText(img, "INTENT: PERIMETER SURVEILLANCE", image.Pt(10, 35), gocv.FontHersheySimplex, 1.0, white, 2)
	gocv.PutText(img, now.Format("2006-01-02 15:04:05"), image.Pt(w-250, 35), gocv.FontHersheySimplex, 0.6, white, 1)

	levelColor := LevelColor(r.Level)
	boxY, boxH := 80, 120
	gocv.Rectangle(img, image.Rect(10, boxY, 400, boxY+boxH), black, -1)
	gocv.Rectangle(img, image.Rect(10, boxY, 400, boxY+boxH), levelColor, 3)
	gocv.PutText(img, "INTENT RISK SCORE", image.Pt(20, boxY+30), gocv.FontHersheySimplex, 0.7, white, 2)
	gocv.PutText(img, fmt.Sprintf("%d", r.Risk), image.Pt(120, boxY+80), gocv.FontHersheySimplex, 2.0, levelColor, 4)
	gocv.PutText(img, "Risk Level: "+r.Level.String(), image.Pt(20, boxY+110), gocv.FontHersheySimplex, 0.6, levelColor, 2)

	y := boxY + boxH + 20
	gocv.PutText(img, "BEHAVIOR ANALYSIS", image.Pt(10, y), gocv.FontHersheySimplex, 0.6, white, 2)
	rows := []struct {
		name  string
		score int
	}{
		{"Pacing", r.Behavior.Pacing},
		{"Approach/Retreat", r.Behavior.ApproachRetreat},
		{"Loitering", r.Behavior.Loitering},
		{"Sudden Movement", r.Behavior.SuddenMovement},
	}
	for i, row := range rows {
		gocv.PutText(img, fmt.Sprintf("%s: %d", row.name, row.score), image.Pt(10, y+30+i*25),
			gocv.FontHersheySimplex, 0.5, scoreColor(row.score), 1)
	}

	y += 150
	trustColor := green
	if !r.Trusted {
		trustColor = red
	}
	gocv.PutText(img, "CAMERA TRUST", image.Pt(10, y), gocv.FontHersheySimplex, 0.6, white, 2)
	gocv.PutText(img, fmt.Sprintf("Overall: %d/100", r.Trust.OverallTrust), image.Pt(10, y+30),
		gocv.FontHersheySimplex, 0.5, trustColor, 2)
	gocv.PutText(img, fmt.Sprintf("Liveness: %d | Entropy: %d | Motion: %d", r.Trust.Liveness, r.Trust.Entropy, r.Trust.Motion),
		image.Pt(10, y+55), gocv.FontHersheySimplex, 0.4, grey, 1)

	y += 85
	subject := "NONE"
	if r.Position.Present() {
		subject = "DETECTED"
	}
	gocv.PutText(img, "Zone: "+r.Zone.String(), image.Pt(10, y), gocv.FontHersheySimplex, 0.5, white, 1)
	gocv.PutText(img, "Person: "+subject, image.Pt(10, y+25), gocv.FontHersheySimplex, 0.5, white, 1)

	// Flash at 2 Hz.
	if text := Banner(r, p.enter); text != "" && now.UnixMilli()/500%2 == 0 {
		gocv.Rectangle(img, image.Rect(0, 0, w, h), red, 10)
		gocv.PutText(img, text, image.Pt(w/2-300, h-30), gocv.FontHersheySimplex, 1.0, red, 3)
	}
}

func (p *Painter) drawZones(img *gocv.Mat, w int) {
	safe, warning, danger := p.perimeter.Lines()
	lines := []struct {
		y    int
		zone perimeter.Zone
	}{
		{safe, perimeter.Warning},
		{warning, perimeter.Danger},
		{danger, perimeter.Intrusion},
	}
	for _, l := range lines {
		c := ZoneColor(l.zone)
		gocv.Line(img, image.Pt(0, l.y), image.Pt(w, l.y), c, 2)
		gocv.PutText(img, l.zone.String(), image.Pt(w-140, l.y-8), gocv.FontHersheySimplex, 0.5, c, 1)
	}
}
